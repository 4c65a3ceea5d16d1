package lock

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

const numShards = 128

// Sharded is an in-process Locker. Keys hash onto a fixed set of shards, so
// unrelated keys may occasionally share one.
type Sharded struct {
	shards [numShards]chan struct{}
}

func NewSharded() *Sharded {
	l := &Sharded{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *Sharded) Acquire(ctx context.Context, keys ...string) (Release, error) {
	keys = normalizeKeys(keys)
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shards := l.shardsFor(keys)
	held := make([]int, 0, len(shards))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-l.shards[held[i]]
		}
	}

	for _, shard := range shards {
		select {
		case l.shards[shard] <- struct{}{}:
			held = append(held, shard)
		case <-ctx.Done():
			releaseHeld()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *Sharded) shardsFor(keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	out := make([]int, 0, len(keys))
	for _, key := range keys {
		shard := int(hashKey(key) % numShards)
		if _, ok := seen[shard]; ok {
			continue
		}
		seen[shard] = struct{}{}
		out = append(out, shard)
	}
	sort.Ints(out)
	return out
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

var _ Locker = (*Sharded)(nil)
