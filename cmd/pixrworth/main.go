package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/migration"
	"github.com/pixrworth/platform/internal/observability"
	"github.com/pixrworth/platform/internal/scheduler"
	"github.com/pixrworth/platform/internal/server"
	"github.com/pixrworth/platform/pkg/db"
)

// The all-in-one binary serves the API and runs the background jobs in a
// single process. Self-hosted deployments start here; the apps/ binaries
// split the same modules across processes.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
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
