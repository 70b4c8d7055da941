package main

import (
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterscan/internal/clock"
	"github.com/smallbiznis/meterscan/internal/config"
	"github.com/smallbiznis/meterscan/internal/migration"
	"github.com/smallbiznis/meterscan/internal/observability"
	"github.com/smallbiznis/meterscan/internal/server"
	"github.com/smallbiznis/meterscan/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
