package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kitties/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

var Module = fx.Module("rate.limit",
	fx.Provide(func(p Params) *MutationLimiter {
		return NewMutationLimiter(p.Config, p.Redis, p.Log)
	}),
)
