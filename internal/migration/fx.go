package migration

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	DB        *gorm.DB `optional:"true"`
	Log       *zap.Logger
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) {
		if p.DB == nil {
			return
		}
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := Migrate(ctx, p.DB); err != nil {
					return err
				}
				p.Log.Info("schema up to date", zap.String("dialect", p.DB.Dialector.Name()))
				return nil
			},
		})
	}),
)
