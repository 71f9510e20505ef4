package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSetDelete(t *testing.T) {
	c := NewLRUCache[int](3, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("hit on empty cache")
	}

	c.Set("a", 1)
	c.Set("a", 2)
	if got, ok := c.Get("a"); !ok || got != 2 {
		t.Fatalf("Get(a) = %d, %v, want 2, true", got, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", c.Size())
	}

	c.Delete("a")
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("hit after delete")
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	// Touch a so b is the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("miss on a")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b survived eviction")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("miss on %s after eviction", key)
		}
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("hit on expired entry")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired() = %d, want 1 (Get already dropped a)", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", c.Size())
	}
}

func TestManagerSweepsRegisteredCaches(t *testing.T) {
	c := NewLRUCache[int](10, 5*time.Millisecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(10 * time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup never removed the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
