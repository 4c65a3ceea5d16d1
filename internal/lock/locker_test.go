package lock

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeKeysSortsAndDedupes(t *testing.T) {
	got := normalizeKeys([]string{"owner:bob", "", "kitty:1", "owner:bob", "owner:alice"})
	assert.Equal(t, []string{"kitty:1", "owner:alice", "owner:bob"}, got)
}

func TestShardedRequiresKeys(t *testing.T) {
	_, err := NewSharded().Acquire(context.Background())
	require.ErrorIs(t, err, ErrNoKeys)
}

func TestShardedSerializesSameKey(t *testing.T) {
	locker := NewSharded()
	ctx := context.Background()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "owner:alice")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()

			n := active.Add(1)
			for {
				prev := maxSeen.Load()
				if n <= prev || maxSeen.CompareAndSwap(prev, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestShardedOverlappingKeySetsDoNotDeadlock(t *testing.T) {
	locker := NewSharded()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "owner:alice", "owner:bob")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			release()
		}()
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "owner:bob", "owner:alice")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			release()
		}()
	}
	wg.Wait()
}

func TestShardedAcquireHonoursContext(t *testing.T) {
	locker := NewSharded()
	release, err := locker.Acquire(context.Background(), "kitty:1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "kitty:1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShardedReleaseIsIdempotent(t *testing.T) {
	locker := NewSharded()
	release, err := locker.Acquire(context.Background(), "kitty:1")
	require.NoError(t, err)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := locker.Acquire(ctx, "kitty:1")
	require.NoError(t, err)
	again()
}

func TestRedisAcquireFailsWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewRedis(client, "kitties:lock:", time.Second).Acquire(ctx, "kitty:1")
	require.Error(t, err)
}

func TestNewLockerFallsBackToSharded(t *testing.T) {
	l := NewLocker(Params{
		Config: config.Config{LockBackend: config.LockRedis},
		Log:    zap.NewNop(),
	})
	if _, ok := l.(*Sharded); !ok {
		t.Fatalf("expected sharded locker, got %T", l)
	}
}

func TestShardsForIsStableAndDeduped(t *testing.T) {
	assert.Equal(t, uint32(0xe40c292c), hashKey("a"))

	l := NewSharded()
	shards := l.shardsFor([]string{"owner:alice", "owner:alice", "kitty:1"})
	assert.Equal(t, shards, l.shardsFor([]string{"kitty:1", "owner:alice"}))
	assert.True(t, sort.IntsAreSorted(shards))
	for _, shard := range shards {
		assert.Less(t, shard, numShards)
	}
}
