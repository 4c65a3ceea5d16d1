package ratelimit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kitties/internal/config"
	"go.uber.org/zap"
)

func TestNilLimiterAllows(t *testing.T) {
	var l *MutationLimiter
	res, err := l.Allow(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected nil limiter to allow")
	}
}

func TestNewMutationLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{RateLimitEnabled: true, RateLimitRate: 1, RateLimitBurst: 5}
	if l := NewMutationLimiter(cfg, nil, zap.NewNop()); l != nil {
		t.Fatalf("expected nil limiter without redis")
	}
	if l := NewMutationLimiter(config.Config{}, nil, zap.NewNop()); l != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
}

func TestTokenBucketNotConfigured(t *testing.T) {
	var bucket *TokenBucket
	if _, err := bucket.Take(context.Background(), "k", Bucket{Rate: 1, Burst: 1}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBucketValidate(t *testing.T) {
	for _, b := range []Bucket{{Rate: 0, Burst: 1}, {Rate: 1, Burst: 0}, {Rate: math.Inf(1), Burst: 1}} {
		if err := b.validate(); !errors.Is(err, ErrInvalidBucket) {
			t.Fatalf("%+v: expected ErrInvalidBucket, got %v", b, err)
		}
	}
	if err := (Bucket{Rate: 5, Burst: 20}).validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBucketTTL(t *testing.T) {
	cases := []struct {
		bucket Bucket
		want   time.Duration
	}{
		{bucket: Bucket{Rate: 1, Burst: 5}, want: 10 * time.Second},
		{bucket: Bucket{Rate: 100, Burst: 1}, want: time.Second},
		{bucket: Bucket{Rate: 0, Burst: 1}, want: time.Second},
	}
	for _, tc := range cases {
		if got := tc.bucket.ttl(); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.bucket, tc.want, got)
		}
	}
}

func TestParseTakeReply(t *testing.T) {
	b := Bucket{Rate: 2, Burst: 10}

	res, err := parseTakeReply([]interface{}{int64(1), "3.75", int64(0)}, b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !res.Allowed || res.Remaining != 3 || res.Limit != 10 || res.RetryAfter != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = parseTakeReply([]interface{}{int64(0), "0.5", int64(250)}, b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Allowed || res.Remaining != 0 || res.RetryAfter != 250*time.Millisecond {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := parseTakeReply([]interface{}{int64(1)}, b); err == nil {
		t.Fatalf("expected short reply to fail")
	}
	if _, err := parseTakeReply([]interface{}{int64(1), int64(3), int64(0)}, b); err == nil {
		t.Fatalf("expected non-string tokens to fail")
	}
}

func TestMutationLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cfg := config.Config{RateLimitEnabled: true, RateLimitRate: 1, RateLimitBurst: 1}
	l := NewMutationLimiter(cfg, client, zap.NewNop())
	if !l.Enabled() {
		t.Fatalf("expected limiter enabled")
	}
	res, err := l.Allow(context.Background(), "alice")
	if err == nil {
		t.Fatalf("expected redis error to surface")
	}
	if !res.Allowed {
		t.Fatalf("expected limiter to fail open")
	}
}
