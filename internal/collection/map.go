package collection

import (
	"sort"
	"sync"
)

type SyncMap[K comparable, V any] struct {
	m   map[K]V
	mux sync.RWMutex
}

func (m *SyncMap[K, V]) Get(k K) (V, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

func (m *SyncMap[K, V]) Put(k K, v V) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.m[k] = v
}

func (m *SyncMap[K, V]) Delete(k K) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.m[k]; ok {
		delete(m.m, k)
		return true
	}
	return false
}

// CompareAndDelete removes k only when match approves the value currently stored.
func (m *SyncMap[K, V]) CompareAndDelete(k K, match func(V) bool) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	v, ok := m.m[k]
	if !ok || !match(v) {
		return false
	}
	delete(m.m, k)
	return true
}

// DeleteFunc removes every entry matched by f and returns how many were removed.
func (m *SyncMap[K, V]) DeleteFunc(f func(key K, value V) bool) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	removed := 0
	for k, v := range m.m {
		if f(k, v) {
			delete(m.m, k)
			removed++
		}
	}
	return removed
}

func (m *SyncMap[K, V]) Clear() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.m = make(map[K]V)
}

func (m *SyncMap[K, V]) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.m)
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}

// SortedKeys returns the keys of a string keyed map in ascending order.
func SortedKeys[V any](m *SyncMap[string, V]) []string {
	m.mux.RLock()
	keys := make([]string, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	m.mux.RUnlock()
	sort.Strings(keys)
	return keys
}
