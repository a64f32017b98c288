// Package cmap provides a sharded concurrent map. Each key maps to one shard so
// that operations on different keys rarely contend, and callbacks passed to
// Upsert and Delete run under the shard lock, which makes read-modify-write
// sequences on a single key atomic.
package cmap

import (
	"hash/fnv"
	"sync"
)

const numShards = 32

type shard[V any] struct {
	sync.RWMutex
	items map[string]V
}

// Map is a concurrent map keyed by string.
type Map[V any] struct {
	shards [numShards]shard[V]
}

// New creates an empty Map.
func New[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%numShards]
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.RLock()
	defer s.RUnlock()

	v, ok := s.items[key]
	return v, ok
}

// UpsertFunc computes the value to store from the current one.
type UpsertFunc[V any] func(value V, exists bool) V

// Upsert stores the value returned by fn and returns it.
func (m *Map[V]) Upsert(key string, fn UpsertFunc[V]) V {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()

	v, exists := s.items[key]
	res := fn(v, exists)
	s.items[key] = res
	return res
}

// DeleteFunc reports whether the current value should be removed.
type DeleteFunc[V any] func(value V, exists bool) bool

// Delete removes key when fn returns true and reports whether it did.
func (m *Map[V]) Delete(key string, fn DeleteFunc[V]) bool {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()

	v, exists := s.items[key]
	if !exists || !fn(v, exists) {
		return false
	}
	delete(s.items, key)
	return true
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.RLock()
		n += len(s.items)
		s.RUnlock()
	}
	return n
}

// Values returns a snapshot of every value.
func (m *Map[V]) Values() []V {
	values := make([]V, 0)
	for i := range m.shards {
		s := &m.shards[i]
		s.RLock()
		for _, v := range s.items {
			values = append(values, v)
		}
		s.RUnlock()
	}
	return values
}

// Keys returns a snapshot of every key.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0)
	for i := range m.shards {
		s := &m.shards[i]
		s.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.RUnlock()
	}
	return keys
}
