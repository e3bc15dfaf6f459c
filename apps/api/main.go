package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/migration"
	"github.com/pixrworth/platform/internal/observability"
	"github.com/pixrworth/platform/internal/server"
	"github.com/pixrworth/platform/pkg/db"
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

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
