/************************************************************************************
 *
 * gatewaysdk — a Go client for realtime chat-gateway services
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2026 The gatewaysdk Authors
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gatewaysdk

import (
	"sync"
)

// shardCount is the number of internal partitions in a ShardMap.
// 256 provides a good balance between memory overhead and lock contention
// reduction for maps with many keys and high concurrent access, such as the
// bucket manager's bucketID -> *bucket table under a busy REST engine.
const shardCount = 256

// mapShard is a single partition of a ShardMap, with its own lock.
type mapShard[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// ShardMap is a concurrent map using 256-way sharding to reduce lock
// contention under high-throughput concurrent access, compared to a single
// mutex guarding one map.
type ShardMap[K comparable, V any] struct {
	shards [shardCount]mapShard[K, V]
	hasher func(K) uint8
}

// NewShardMap creates a new ShardMap with the given hash function.
// The hash function should distribute keys evenly across 0-255.
func NewShardMap[K comparable, V any](hasher func(K) uint8) *ShardMap[K, V] {
	m := &ShardMap[K, V]{hasher: hasher}
	for i := range m.shards {
		m.shards[i].data = make(map[K]V)
	}
	return m
}

// NewStringShardMap creates a ShardMap keyed by string, hashing on the last
// byte of the key. Route and bucket identifiers are short ASCII strings, so
// this gives a reasonably even distribution without pulling in a general
// string-hashing dependency.
func NewStringShardMap[V any]() *ShardMap[string, V] {
	return NewShardMap[string, V](func(k string) uint8 {
		if len(k) == 0 {
			return 0
		}
		return k[len(k)-1]
	})
}

// getShard returns the partition for a given key.
//
//go:nosplit
func (m *ShardMap[K, V]) getShard(key K) *mapShard[K, V] {
	return &m.shards[m.hasher(key)]
}

// Get retrieves a value from the map.
// Returns the value and true if found, zero value and false otherwise.
func (m *ShardMap[K, V]) Get(key K) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores a value in the map.
func (m *ShardMap[K, V]) Set(key K, value V) {
	s := m.getShard(key)
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Delete removes a value from the map.
// Returns true if the key existed, false otherwise.
func (m *ShardMap[K, V]) Delete(key K) bool {
	s := m.getShard(key)
	s.mu.Lock()
	_, existed := s.data[key]
	if existed {
		delete(s.data, key)
	}
	s.mu.Unlock()
	return existed
}

// Has checks if a key exists in the map.
func (m *ShardMap[K, V]) Has(key K) bool {
	s := m.getShard(key)
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok
}

// Len returns the total number of entries across all shards.
// The result may be slightly stale in concurrent scenarios.
func (m *ShardMap[K, V]) Len() int {
	total := 0
	for i := range m.shards {
		m.shards[i].mu.RLock()
		total += len(m.shards[i].data)
		m.shards[i].mu.RUnlock()
	}
	return total
}

// Range calls fn for each key-value pair in the map. If fn returns false,
// iteration stops. fn is called with the shard lock held, so it should be
// fast and must not call back into the same ShardMap.
func (m *ShardMap[K, V]) Range(fn func(K, V) bool) {
	for i := range m.shards {
		m.shards[i].mu.RLock()
		for k, v := range m.shards[i].data {
			if !fn(k, v) {
				m.shards[i].mu.RUnlock()
				return
			}
		}
		m.shards[i].mu.RUnlock()
	}
}

// GetOrSet retrieves a value or stores it if not present.
// Returns the existing value and true, or the new value and false.
func (m *ShardMap[K, V]) GetOrSet(key K, value V) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	if v, ok := s.data[key]; ok {
		s.mu.Unlock()
		return v, true
	}
	s.data[key] = value
	s.mu.Unlock()
	return value, false
}

// Clear removes all entries from the map.
func (m *ShardMap[K, V]) Clear() {
	for i := range m.shards {
		m.shards[i].mu.Lock()
		m.shards[i].data = make(map[K]V)
		m.shards[i].mu.Unlock()
	}
}

// Keys returns a snapshot of all keys currently in the map.
func (m *ShardMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	for i := range m.shards {
		m.shards[i].mu.RLock()
		for k := range m.shards[i].data {
			keys = append(keys, k)
		}
		m.shards[i].mu.RUnlock()
	}
	return keys
}
