package cache

import (
	"sync"
	"time"
)

// MapCache is an unbounded map-backed Cache without expiry. Handlers use it
// in tests and when the ristretto cache cannot be built.
type MapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits uint64
	miss uint64
}

// NewMapCache returns an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{data: make(map[string][]byte)}
}

func (m *MapCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, found := m.data[key]
	if found {
		m.hits++
	} else {
		m.miss++
	}
	return val, found
}

func (m *MapCache) Set(key string, value []byte, _ time.Duration) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

func (m *MapCache) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

func (m *MapCache) Clear() {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.mu.Unlock()
}

func (m *MapCache) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Hits: m.hits, Misses: m.miss, Items: int64(len(m.data))}
}
