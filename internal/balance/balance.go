// Package balance reads a principal's currency balance. The registry only
// logs it; nothing is charged.
package balance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

const keyBalance = "kitties:balance:%s"

type Reader interface {
	TotalBalance(ctx context.Context, principal string) (int64, error)
}

// Noop reports zero for everyone.
type Noop struct{}

func (Noop) TotalBalance(context.Context, string) (int64, error) { return 0, nil }

// RedisReader reads balances stored as integer strings.
type RedisReader struct {
	client *redis.Client
}

func NewRedisReader(client *redis.Client) *RedisReader {
	return &RedisReader{client: client}
}

func (r *RedisReader) TotalBalance(ctx context.Context, principal string) (int64, error) {
	raw, err := r.client.Get(ctx, Key(principal)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return value, nil
}

// Key returns the Redis key holding principal's balance.
func Key(principal string) string {
	return fmt.Sprintf(keyBalance, strings.TrimSpace(principal))
}
