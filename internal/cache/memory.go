package cache

import (
	"sort"
	"sync"
	"time"
)

// Stats counts memory-tier operations since construction.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Sets     int64 `json:"sets"`
	Deletes  int64 `json:"deletes"`
	Cleanups int64 `json:"cleanups"`
	Entries  int   `json:"entries"`
}

type memEntry struct {
	value        any
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
}

// Memory is a bounded in-process TTL cache. When an insert hits capacity the
// 10% least-recently-accessed entries are evicted. Critical sections are O(1)
// except for that eviction sweep.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	maxEntries int
	stats      Stats
	now        func() time.Time
}

// NewMemory returns a memory cache bounded to maxEntries (10,000 when <= 0).
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &Memory{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached value and refreshes its access time. Expired entries
// are removed and reported as misses.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	now := m.now()
	if now.After(e.expiresAt) {
		delete(m.entries, key)
		m.stats.Misses++
		return nil, false
	}
	e.lastAccessed = now
	m.entries[key] = e
	m.stats.Hits++
	return e.value, true
}

// Set stores value under key with the given TTL, evicting at capacity.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = memEntry{
		value:        value,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
	m.stats.Sets++
}

// Delete removes a key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.stats.Deletes++
	}
}

// Cleanup removes all expired entries and returns how many were dropped.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	if removed > 0 {
		m.stats.Cleanups++
	}
	return removed
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Entries = len(m.entries)
	return s
}

// evictLocked drops the 10% least-recently-accessed entries (at least one).
func (m *Memory) evictLocked() {
	n := len(m.entries) / 10
	if n < 1 {
		n = 1
	}
	type kv struct {
		key string
		at  time.Time
	}
	all := make([]kv, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, kv{k, e.lastAccessed})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < n && i < len(all); i++ {
		delete(m.entries, all[i].key)
		m.stats.Deletes++
	}
}
