package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory(10)
	m.Set("a", 1, time.Minute)
	v, ok := m.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("get: %v ok=%v", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	s := m.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Sets != 1 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(10)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.Set("a", "x", time.Minute)
	now = now.Add(2 * time.Minute)
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
	// Expired entry is removed on access.
	if m.Stats().Entries != 0 {
		t.Fatalf("entries: %d", m.Stats().Entries)
	}
}

func TestMemory_EvictsTenPercentLRU(t *testing.T) {
	m := NewMemory(100)
	now := time.Now()
	m.now = func() time.Time { return now }
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("k%03d", i), i, time.Hour)
		now = now.Add(time.Second)
	}
	// Refresh the oldest key so it survives eviction.
	if _, ok := m.Get("k000"); !ok {
		t.Fatal("expected hit")
	}
	now = now.Add(time.Second)
	m.Set("overflow", true, time.Hour)

	if _, ok := m.Get("k000"); !ok {
		t.Fatal("recently accessed key should survive eviction")
	}
	// k001..k010 were the least recently accessed 10%.
	for i := 1; i <= 10; i++ {
		if _, ok := m.Get(fmt.Sprintf("k%03d", i)); ok {
			t.Fatalf("k%03d should have been evicted", i)
		}
	}
	if _, ok := m.Get("k011"); !ok {
		t.Fatal("k011 should remain")
	}
}

func TestMemory_Cleanup(t *testing.T) {
	m := NewMemory(10)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.Set("old", 1, time.Second)
	m.Set("new", 2, time.Hour)
	now = now.Add(time.Minute)
	if removed := m.Cleanup(); removed != 1 {
		t.Fatalf("removed: %d", removed)
	}
	if _, ok := m.Get("new"); !ok {
		t.Fatal("fresh entry should survive cleanup")
	}
}
