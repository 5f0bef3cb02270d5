package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/migration"
	"github.com/smallbiznis/kiraya/internal/observability"
	"github.com/smallbiznis/kiraya/internal/scheduler"
	"github.com/smallbiznis/kiraya/internal/server"
	"github.com/smallbiznis/kiraya/internal/snapshotexport"
	"github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema and bootstrap account run before anything serves traffic.
		migration.Module,

		// HTTP API and the domain services behind it
		server.Module,

		// Background notice sweep
		snapshotexport.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
