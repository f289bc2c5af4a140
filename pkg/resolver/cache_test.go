// Copyright 2025 Shadow Atlas Project

package resolver

import (
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	key := CacheKey{NormalizedAddress: "a"}
	c.Put(key, []Resolution{{BoundaryID: "x"}}, now)

	got, ok := c.Get(key, now)
	if !ok || len(got) != 1 || got[0].BoundaryID != "x" {
		t.Fatalf("expected cached entry, got %+v ok=%v", got, ok)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Now()
	key := CacheKey{NormalizedAddress: "a"}
	c.Put(key, []Resolution{{BoundaryID: "x"}}, now)

	_, ok := c.Get(key, now.Add(2*time.Minute))
	if ok {
		t.Fatalf("expected entry to have expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted on access")
	}
}

func TestCache_EvictsLRU(t *testing.T) {
	c := NewCache(2, time.Hour)
	now := time.Now()
	keyA := CacheKey{NormalizedAddress: "a"}
	keyB := CacheKey{NormalizedAddress: "b"}
	keyC := CacheKey{NormalizedAddress: "c"}

	c.Put(keyA, []Resolution{{BoundaryID: "a"}}, now)
	c.Put(keyB, []Resolution{{BoundaryID: "b"}}, now)
	c.Get(keyA, now) // touch a, making b the LRU entry
	c.Put(keyC, []Resolution{{BoundaryID: "c"}}, now)

	if _, ok := c.Get(keyB, now); ok {
		t.Fatalf("expected b to have been evicted as least-recently-used")
	}
	if _, ok := c.Get(keyA, now); !ok {
		t.Fatalf("expected a to survive eviction")
	}
	if _, ok := c.Get(keyC, now); !ok {
		t.Fatalf("expected c to be present")
	}
}
