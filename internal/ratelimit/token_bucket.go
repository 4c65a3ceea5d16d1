package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey      = errors.New("rate_limiter_empty_key")
	ErrInvalidBucket = errors.New("rate_limiter_invalid_bucket")
)

// takeScript refills the bucket from Redis server time, takes one token when
// available and reports how long a caller must wait for the next one.
// Remaining tokens are returned as a string so the fraction survives the
// Lua to Redis integer conversion.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(burst, tokens + ((now - ts) / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), wait}
`

// Bucket is a refill rate in tokens per second and a capacity.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) validate() error {
	if b.Rate <= 0 || b.Burst <= 0 || math.IsInf(b.Rate, 0) || math.IsNaN(b.Rate) {
		return fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidBucket, b.Rate, b.Burst)
	}
	return nil
}

// ttl keeps idle keys around for twice the time a full refill takes.
func (b Bucket) ttl() time.Duration {
	if b.Rate <= 0 || b.Burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(b.Burst)/b.Rate))
	return time.Duration(seconds) * time.Second
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket evaluates buckets atomically inside Redis.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeScript)}
}

// Take consumes one token from the bucket stored at key.
func (t *TokenBucket) Take(ctx context.Context, key string, b Bucket) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	raw, err := t.script.Run(ctx, t.client, []string{key}, b.Rate, b.Burst, b.ttl().Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("run token bucket script: %w", err)
	}
	return parseTakeReply(raw, b)
}

func parseTakeReply(raw []interface{}, b Bucket) (*RateLimitResult, error) {
	if len(raw) != 3 {
		return nil, fmt.Errorf("token bucket reply: want 3 values, got %d", len(raw))
	}
	allowed, ok := raw[0].(int64)
	if !ok {
		return nil, fmt.Errorf("token bucket reply: allowed is %T", raw[0])
	}
	tokensText, ok := raw[1].(string)
	if !ok {
		return nil, fmt.Errorf("token bucket reply: tokens is %T", raw[1])
	}
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return nil, fmt.Errorf("token bucket reply: %w", err)
	}
	waitMS, ok := raw[2].(int64)
	if !ok {
		return nil, fmt.Errorf("token bucket reply: wait is %T", raw[2])
	}

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      b.Burst,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: time.Duration(waitMS) * time.Millisecond,
	}, nil
}
