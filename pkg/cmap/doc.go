// Package cmap provides a concurrent-safe sharded map.
//
// Keys are spread over a power-of-two number of shards using murmur3, each
// shard guarded by its own RWMutex. Every operation locks exactly one shard
// for its own duration; Range visits shards one at a time, so its view is
// not a consistent snapshot.
//
// Usage:
//
//	m := cmap.New[int32, *Entry]()
//	m.Set(1, entry)
//	val, ok := m.Get(1)
package cmap
