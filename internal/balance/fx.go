package balance

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

var Module = fx.Module("balance",
	fx.Provide(NewReader),
)

func NewReader(p Params) Reader {
	if p.Redis == nil {
		return Noop{}
	}
	return NewRedisReader(p.Redis)
}
