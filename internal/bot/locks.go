package bot

import "sync"

// keyedMutex serializes work per identity. Entries are dropped when the last
// holder unlocks, so idle identities cost nothing.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*keyedEntry)}
}

// Lock blocks until identity is free and returns its unlock func.
func (k *keyedMutex) Lock(identity int64) func() {
	k.mu.Lock()
	e, ok := k.locks[identity]
	if !ok {
		e = &keyedEntry{}
		k.locks[identity] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, identity)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
