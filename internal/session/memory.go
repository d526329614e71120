package session

import (
	"context"
	"strconv"
	"time"

	"flotta/internal/cache"
)

// DefaultMaxSessions bounds the in-memory store.
const DefaultMaxSessions = 10_000

// MemoryStore keeps sessions in a TTL LRU cache. Sessions are stored by
// value so callers never share state with the store.
type MemoryStore struct {
	cache *cache.LRUCache[EntrySession]
}

// NewMemoryStore keeps each session for retention after its last save.
// Retention should exceed the manager idle timeout so that a stale session is
// reported as expired rather than missing.
func NewMemoryStore(retention time.Duration, maxSessions int, opts ...cache.Option) *MemoryStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &MemoryStore{cache: cache.NewLRUCache[EntrySession](maxSessions, retention, opts...)}
}

func key(identity int64) string {
	return strconv.FormatInt(identity, 10)
}

func (m *MemoryStore) Load(_ context.Context, identity int64) (*EntrySession, bool, error) {
	s, ok := m.cache.Get(key(identity))
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (m *MemoryStore) Save(_ context.Context, s *EntrySession) error {
	m.cache.Set(key(s.Identity), *s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, identity int64) (bool, error) {
	return m.cache.Delete(key(identity)), nil
}

// CleanExpired lets a cache.Manager sweep the store.
func (m *MemoryStore) CleanExpired() int {
	return m.cache.CleanExpired()
}

// Len returns the number of stored sessions, expired ones included until swept.
func (m *MemoryStore) Len() int {
	return m.cache.Size()
}
