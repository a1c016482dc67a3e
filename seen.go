package main

import (
	"sync"
)

const NumShards = 128 // Power of 2, keeps lock contention low under many workers

// ShardedSeenMap tracks parameter-set fingerprints that are already accounted
// for (loaded from checkpoint or dispatched this sweep). Sharded across 128
// mutexes so workers and the producer never serialize on one lock.
type ShardedSeenMap struct {
	shards [NumShards]struct {
		mu    sync.Mutex
		items map[string]struct{}
	}
}

// NewShardedSeenMap creates a sharded seen map with pre-allocated shards
func NewShardedSeenMap() *ShardedSeenMap {
	ssm := &ShardedSeenMap{}
	for i := 0; i < NumShards; i++ {
		// Pre-size to reduce rehashing
		ssm.shards[i].items = make(map[string]struct{}, 64)
	}
	return ssm
}

// fnv1aHash implements FNV-1a hash - very fast, good distribution
func fnv1aHash(s string) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// CheckAndSet checks if a fingerprint exists in the seen map.
// Returns false if already seen (duplicate), true if new (added).
func (ssm *ShardedSeenMap) CheckAndSet(fp string) bool {
	hash := fnv1aHash(fp)
	shardIdx := hash & (NumShards - 1) // Fast modulo for power of 2

	shard := &ssm.shards[shardIdx]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.items[fp]; ok {
		return false // Already seen
	}
	shard.items[fp] = struct{}{}
	return true // New fingerprint
}

// Restore adds fingerprints from checkpointed records (used on resume)
func (ssm *ShardedSeenMap) Restore(fingerprints []string) {
	for _, fp := range fingerprints {
		hash := fnv1aHash(fp)
		shardIdx := hash & (NumShards - 1)
		shard := &ssm.shards[shardIdx]
		shard.mu.Lock()
		shard.items[fp] = struct{}{}
		shard.mu.Unlock()
	}
}

// Len returns the total number of tracked fingerprints
func (ssm *ShardedSeenMap) Len() int {
	n := 0
	for i := 0; i < NumShards; i++ {
		shard := &ssm.shards[i]
		shard.mu.Lock()
		n += len(shard.items)
		shard.mu.Unlock()
	}
	return n
}
