package cache

import (
	"container/list"
	"sync"
	"time"
)

type memEntry struct {
	entry   Entry
	element *list.Element
}

// memoryTier is a bounded map with insertion-order eviction.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	order   *list.List
	max     int
}

func newMemoryTier(max int) *memoryTier {
	if max <= 0 {
		max = 10000
	}
	return &memoryTier{
		entries: make(map[string]*memEntry),
		order:   list.New(),
		max:     max,
	}
}

func (m *memoryTier) get(key string, now time.Time) (Entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.RUnlock()
		return Entry{}, false
	}
	entry := e.entry
	m.mu.RUnlock()

	if entry.expired(now) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			m.removeLocked(key, cur)
		}
		m.mu.Unlock()
		return Entry{}, false
	}
	return entry, true
}

func (m *memoryTier) set(key string, entry Entry, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		e.entry = entry
		return
	}
	if len(m.entries) >= m.max {
		m.evictLocked(now)
	}
	m.entries[key] = &memEntry{
		entry:   entry,
		element: m.order.PushBack(key),
	}
}

// evictLocked sweeps expired entries and, if the map is still full, drops
// the oldest tenth.
func (m *memoryTier) evictLocked(now time.Time) {
	for key, e := range m.entries {
		if e.entry.expired(now) {
			m.removeLocked(key, e)
		}
	}
	if len(m.entries) < m.max {
		return
	}
	batch := m.max / 10
	if batch < 1 {
		batch = 1
	}
	for i := 0; i < batch; i++ {
		front := m.order.Front()
		if front == nil {
			return
		}
		key := front.Value.(string)
		m.removeLocked(key, m.entries[key])
	}
}

func (m *memoryTier) delete(keys ...string) {
	m.mu.Lock()
	for _, key := range keys {
		if e, ok := m.entries[key]; ok {
			m.removeLocked(key, e)
		}
	}
	m.mu.Unlock()
}

func (m *memoryTier) deleteSubject(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entries {
		if e.entry.Subject() == subject {
			m.removeLocked(key, e)
			n++
		}
	}
	return n
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *memoryTier) removeLocked(key string, e *memEntry) {
	if e == nil {
		return
	}
	m.order.Remove(e.element)
	delete(m.entries, key)
}
