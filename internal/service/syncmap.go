package service

import "sync"

// SyncMap is a type-safe concurrent map using generics.
// It uses a RWMutex for safe concurrent access, which is more efficient than
// sync.Map for workloads with frequent reads and infrequent writes.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

// NewSyncMap creates a new type-safe concurrent map.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value stored in the map for a key, or the zero value
// if no value is present. The ok result indicates whether value was found.
func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	value, ok = sm.m[key]
	return
}

// Store sets the value for a key.
func (sm *SyncMap[K, V]) Store(key K, value V) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.m[key] = value
}

// Swap stores value for key and returns the previous value, if any.
// The swap happens under a single lock acquisition so callers can safely
// replace-and-cancel without racing a concurrent Swap for the same key.
func (sm *SyncMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	previous, loaded = sm.m[key]
	sm.m[key] = value
	return
}

// Delete deletes the value for a key.
func (sm *SyncMap[K, V]) Delete(key K) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.m, key)
}

// CompareAndDelete deletes the entry for key only if its current value equals
// old according to eq. It reports whether the entry was deleted.
func (sm *SyncMap[K, V]) CompareAndDelete(key K, old V, eq func(a, b V) bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	current, ok := sm.m[key]
	if !ok || !eq(current, old) {
		return false
	}
	delete(sm.m, key)
	return true
}

// Range calls fn for each entry in the map. fn must not call back into the
// map. Iteration stops if fn returns false.
func (sm *SyncMap[K, V]) Range(fn func(key K, value V) bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for k, v := range sm.m {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of items in the map.
func (sm *SyncMap[K, V]) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}
