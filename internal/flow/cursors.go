package flow

import (
	"sync"
	"sync/atomic"

	"github.com/segmentio/fasthash/fnv1a"
)

const DefaultShards = 32

type cursor struct {
	step Step
	gen  uint64
}

type cursorShard struct {
	mu sync.Mutex
	m  map[string]cursor
}

// Cursors holds the active step of every user. Every write gets a fresh
// generation so callers can detect that a step was replaced under them.
type Cursors struct {
	shards []cursorShard
	gen    atomic.Uint64
}

func NewCursors(n int) *Cursors {
	if n <= 0 {
		n = DefaultShards
	}
	c := &Cursors{shards: make([]cursorShard, n)}
	for i := range c.shards {
		c.shards[i].m = map[string]cursor{}
	}
	return c
}

func (c *Cursors) shard(userID string) *cursorShard {
	return &c.shards[fnv1a.HashString32(userID)%uint32(len(c.shards))]
}

func (c *Cursors) Get(userID string) (Step, uint64, bool) {
	sh := c.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.m[userID]
	return cur.step, cur.gen, ok
}

// Set replaces the user's step and returns its generation.
func (c *Cursors) Set(userID string, step Step) uint64 {
	sh := c.shard(userID)
	gen := c.gen.Add(1)
	sh.mu.Lock()
	sh.m[userID] = cursor{step: step, gen: gen}
	sh.mu.Unlock()
	return gen
}

// CompareAndSet replaces the step only if it still has generation gen.
func (c *Cursors) CompareAndSet(userID string, gen uint64, step Step) bool {
	sh := c.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[userID]; !ok || cur.gen != gen {
		return false
	}
	sh.m[userID] = cursor{step: step, gen: c.gen.Add(1)}
	return true
}

// CompareAndClear removes the step only if it still has generation gen.
func (c *Cursors) CompareAndClear(userID string, gen uint64) bool {
	sh := c.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[userID]; !ok || cur.gen != gen {
		return false
	}
	delete(sh.m, userID)
	return true
}

// SetIfAbsent installs step unless the user already has one.
func (c *Cursors) SetIfAbsent(userID string, step Step) bool {
	sh := c.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[userID]; ok {
		return false
	}
	sh.m[userID] = cursor{step: step, gen: c.gen.Add(1)}
	return true
}

func (c *Cursors) Clear(userID string) (Step, bool) {
	sh := c.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.m[userID]
	delete(sh.m, userID)
	return cur.step, ok
}

func (c *Cursors) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
