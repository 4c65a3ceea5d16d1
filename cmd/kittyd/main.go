package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kitties/internal/auth"
	"github.com/smallbiznis/kitties/internal/balance"
	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/events"
	"github.com/smallbiznis/kitties/internal/kitty"
	"github.com/smallbiznis/kitties/internal/lock"
	"github.com/smallbiznis/kitties/internal/migration"
	"github.com/smallbiznis/kitties/internal/observability"
	"github.com/smallbiznis/kitties/internal/ratelimit"
	"github.com/smallbiznis/kitties/internal/redisclient"
	"github.com/smallbiznis/kitties/internal/server"
	"github.com/smallbiznis/kitties/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(options()...).Run()
}

func options() []fx.Option {
	return []fx.Option{
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisclient.Module,
		lock.Module,
		ratelimit.Module,
		balance.Module,
		auth.Module,

		// Schema must be in place before anything reads the store.
		migration.Module,

		// Functional Domains
		events.Module,
		kitty.Module,
		server.Module,
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
