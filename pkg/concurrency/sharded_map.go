package concurrency

import (
	"hash/fnv"
)

const shardCount = 64

type ShardedMap[K comparable, V any] struct {
	shards []*shard[K, V]
}

type shard[K comparable, V any] struct {
	mu   *SmartRWMutex
	data map[K]V
}

func NewShardedMap[K comparable, V any]() *ShardedMap[K, V] {
	m := &ShardedMap[K, V]{
		shards: make([]*shard[K, V], shardCount),
	}
	for i := 0; i < shardCount; i++ {
		m.shards[i] = &shard[K, V]{
			data: make(map[K]V),
			mu:   NewSmartRWMutex(MutexConfig{Name: "ShardedMap-Shard"}),
		}
	}
	return m
}

func (m *ShardedMap[K, V]) getShard(key string) *shard[K, V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	idx := h.Sum32() % shardCount
	return m.shards[idx]
}

// getShard above hashes string keys only: a generic 'comparable' key cannot be
// hashed without reflection, and ShardedMap has no accessor methods.
// ShardedMapString below is the string-keyed map with Set, Get and Delete.

type ShardedMapString[V any] struct {
	shards []*shardString[V]
}
type shardString[V any] struct {
	mu   *SmartRWMutex
	data map[string]V
}

func NewShardedMapString[V any]() *ShardedMapString[V] {
	m := &ShardedMapString[V]{
		shards: make([]*shardString[V], shardCount),
	}
	for i := 0; i < shardCount; i++ {
		m.shards[i] = &shardString[V]{
			data: make(map[string]V),
			mu:   NewSmartRWMutex(MutexConfig{Name: "ShardedMapString-Shard"}),
		}
	}
	return m
}

func (m *ShardedMapString[V]) getShard(key string) *shardString[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return m.shards[uint(h.Sum32())%shardCount]
}

func (m *ShardedMapString[V]) Set(key string, value V) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.data[key] = value
}

func (m *ShardedMapString[V]) Get(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	val, ok := shard.data[key]
	return val, ok
}

func (m *ShardedMapString[V]) Delete(key string) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.data, key)
}
