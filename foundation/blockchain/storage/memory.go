package storage

import (
	"sort"
	"strings"
	"sync"
)

// Memory represents the in memory implementation for tests and ephemeral
// nodes. This implements the Storage interface.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory constructs an empty in memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Close in this implementation has nothing to release.
func (m *Memory) Close() error {
	return nil
}

// Get returns a copy of the value stored under the key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// BatchWrite applies all sets and deletes under one lock acquisition.
func (m *Memory) BatchWrite(sets []Pair, deletes [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pair := range sets {
		m.data[string(pair.Key)] = append([]byte(nil), pair.Value...)
	}
	for _, key := range deletes {
		delete(m.data, string(key))
	}

	return nil
}

// Iter returns an iterator over a sorted snapshot of the keys with the
// prefix.
func (m *Memory) Iter(prefix []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		pairs[i] = Pair{
			Key:   []byte(k),
			Value: append([]byte(nil), m.data[k]...),
		}
	}

	return &memoryIterator{pairs: pairs}, nil
}

// memoryIterator walks a snapshot of pairs.
type memoryIterator struct {
	pairs []Pair
	idx   int
}

// Next advances to the next pair and reports whether one exists.
func (mi *memoryIterator) Next() bool {
	if mi.idx >= len(mi.pairs) {
		return false
	}
	mi.idx++
	return true
}

// Key returns the current key.
func (mi *memoryIterator) Key() []byte {
	return mi.pairs[mi.idx-1].Key
}

// Value returns the current value.
func (mi *memoryIterator) Value() []byte {
	return mi.pairs[mi.idx-1].Value
}

// Error in this implementation never reports an error.
func (mi *memoryIterator) Error() error {
	return nil
}

// Close in this implementation has nothing to release.
func (mi *memoryIterator) Close() error {
	return nil
}
