package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultLockTTL    = 10 * time.Second
	defaultRetryDelay = 20 * time.Millisecond
	maxRetryDelay     = 250 * time.Millisecond
)

// Redis is a Locker shared by every process using the same Redis. Each key
// is a SET NX entry holding a random token and expiring after ttl.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (l *Redis) Acquire(ctx context.Context, keys ...string) (Release, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	keys = normalizeKeys(keys)
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	type heldKey struct {
		key   string
		token string
	}
	held := make([]heldKey, 0, len(keys))
	releaseHeld := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.script.Run(releaseCtx, l.client, []string{held[i].key}, held[i].token).Err()
		}
	}

	for _, key := range keys {
		redisKey := l.prefix + key
		token, err := l.lock(ctx, redisKey)
		if err != nil {
			releaseHeld()
			return nil, err
		}
		held = append(held, heldKey{key: redisKey, token: token})
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *Redis) lock(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	delay := defaultRetryDelay
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		if delay < maxRetryDelay {
			delay *= 2
		}
	}
}

var _ Locker = (*Redis)(nil)
