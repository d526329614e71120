package telegram

import (
	"sync"

	"flotta/internal/bot"
)

// dispatchQueue runs events of different identities concurrently while
// keeping each identity's events in arrival order. An identity key exists in
// pending exactly while a drain goroutine owns it.
type dispatchQueue struct {
	mu      sync.Mutex
	pending map[int64][]bot.Event
	wg      sync.WaitGroup
	handle  func(bot.Event)
}

func newDispatchQueue(handle func(bot.Event)) *dispatchQueue {
	return &dispatchQueue{
		pending: make(map[int64][]bot.Event),
		handle:  handle,
	}
}

func (q *dispatchQueue) push(ev bot.Event) {
	q.mu.Lock()
	queued, running := q.pending[ev.Identity]
	q.pending[ev.Identity] = append(queued, ev)
	q.mu.Unlock()

	if !running {
		q.wg.Add(1)
		go q.drain(ev.Identity)
	}
}

func (q *dispatchQueue) drain(identity int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.pending[identity]
		if len(queued) == 0 {
			delete(q.pending, identity)
			q.mu.Unlock()
			return
		}
		ev := queued[0]
		q.pending[identity] = queued[1:]
		q.mu.Unlock()

		q.handle(ev)
	}
}

// wait blocks until every queued event has been handled.
func (q *dispatchQueue) wait() {
	q.wg.Wait()
}
