package kitty

import (
	"context"
	"fmt"

	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/smallbiznis/kitties/internal/kitty/memstore"
	"github.com/smallbiznis/kitties/internal/kitty/repository"
	"github.com/smallbiznis/kitties/internal/kitty/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB `optional:"true"`
	Log    *zap.Logger
}

var Module = fx.Module("kitty.service",
	fx.Provide(NewStore),
	fx.Provide(NewLimits),
	fx.Provide(service.New),
	fx.Invoke(startRegistry),
)

// NewStore picks the relational store when a database is configured.
func NewStore(p StoreParams) domain.Store {
	if p.Config.UsesDatabase() && p.DB != nil {
		return repository.New(p.DB)
	}
	return memstore.New()
}

func NewLimits(holder *config.RegistryConfigHolder) domain.Limits {
	return holder
}

func startRegistry(lc fx.Lifecycle, store domain.Store, holder *config.RegistryConfigHolder, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := EnforceCapacityFloor(ctx, store, holder, log); err != nil {
				return err
			}
			backend := "memory"
			if _, ok := store.(*repository.Store); ok {
				backend = "database"
			}
			log.Info("kitty registry ready",
				zap.String("store", backend),
				zap.Int("max_owned", holder.MaxOwned()),
			)
			return nil
		},
	})
}

// EnforceCapacityFloor keeps MaxOwned at or above the largest collection
// already stored, so a restart with a lower setting cannot leave owners
// over capacity.
func EnforceCapacityFloor(ctx context.Context, store domain.Store, holder *config.RegistryConfigHolder, log *zap.Logger) error {
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("inspect registry: %w", err)
	}

	largest := 0
	for _, ids := range snap.Owned {
		largest = max(largest, len(ids))
	}

	configured := holder.MaxOwned()
	if holder.RaiseTo(largest) {
		log.Warn("registry.maxOwned is below the largest stored collection, raising it",
			zap.Int("configured", configured),
			zap.Int("max_owned", largest),
		)
	}
	return nil
}
