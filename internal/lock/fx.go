package lock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kitties/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const redisKeyPrefix = "kitties:lock:"

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

// NewLocker selects the distributed locker when Redis is available.
func NewLocker(p Params) Locker {
	if p.Config.LockBackend == config.LockRedis && p.Redis != nil {
		p.Log.Info("using redis locks", zap.Duration("ttl", p.Config.LockTTL))
		return NewRedis(p.Redis, redisKeyPrefix, p.Config.LockTTL)
	}
	if p.Config.LockBackend == config.LockRedis {
		p.Log.Warn("redis lock backend requested without REDIS_URL, using in-process locks")
	}
	return NewSharded()
}
