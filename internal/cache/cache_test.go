package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute, WithClock(clock.Now))

	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	clock.Advance(59 * time.Second)
	c.Set("a", "2") // refreshes ttl
	clock.Advance(59 * time.Second)
	if v, ok := c.Get("a"); !ok || v != "2" {
		t.Fatalf("refreshed entry expired early: %q %v", v, ok)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry not removed on Get, size %d", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry evicted")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](4, time.Minute, WithClock(clock.Now))
	c.Set("a", 1)
	if !c.Delete("a") {
		t.Fatal("Delete of live entry should report true")
	}
	if c.Delete("a") {
		t.Fatal("Delete of missing entry should report false")
	}

	c.Set("b", 2)
	clock.Advance(2 * time.Minute)
	if c.Delete("b") {
		t.Fatal("Delete of expired entry should report false")
	}
}

func TestManagerSweep(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](4, time.Minute, WithClock(clock.Now))
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager()
	m.Register("test", c)
	clock.Advance(time.Hour)

	if n := m.Sweep(context.Background()); n != 2 {
		t.Fatalf("Sweep removed %d, want 2", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size %d after sweep", c.Size())
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager()
	m.StartCleanup(context.Background(), time.Millisecond)
	m.Stop()
	m.Stop()

	idle := NewManager()
	idle.Stop()
}
