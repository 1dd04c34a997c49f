package store

import (
	"slices"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"
)

const DefaultShards = 32

type shardedLocks struct {
	shards []sync.Mutex
}

func newShardedLocks(n int) *shardedLocks {
	if n <= 0 {
		n = DefaultShards
	}
	return &shardedLocks{shards: make([]sync.Mutex, n)}
}

func (l *shardedLocks) shardOf(k Key) int {
	return int(fnv1a.HashString32(k.String()) % uint32(len(l.shards)))
}

// lock acquires every shard covering keys in ascending shard order, so two
// transactions with overlapping keys can never deadlock.
func (l *shardedLocks) lock(keys []Key) (unlock func()) {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, l.shardOf(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		l.shards[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.shards[idx[j]].Unlock()
		}
	}
}
