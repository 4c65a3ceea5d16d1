package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kitties/internal/config"
	"go.uber.org/zap"
)

const keyMutation = "kitties:ratelimit:mutation:%s"

// MutationLimiter throttles create and transfer calls per principal.
type MutationLimiter struct {
	tokens *TokenBucket
	bucket Bucket
	log    *zap.Logger
}

// NewMutationLimiter returns nil unless rate limiting is enabled and Redis is
// configured. A nil limiter allows everything.
func NewMutationLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *MutationLimiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	if client == nil {
		log.Warn("rate limiting requested without REDIS_URL, disabled")
		return nil
	}
	return &MutationLimiter{
		tokens: NewTokenBucket(client),
		bucket: Bucket{Rate: cfg.RateLimitRate, Burst: cfg.RateLimitBurst},
		log:    log.Named("ratelimit"),
	}
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.tokens != nil
}

// Allow consumes one token for principal. Redis failures fail open.
func (l *MutationLimiter) Allow(ctx context.Context, principal string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyMutation, strings.TrimSpace(principal))
	res, err := l.tokens.Take(ctx, key, l.bucket)
	if err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return &RateLimitResult{Allowed: true}, err
	}
	return res, nil
}
