package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/account"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/glowup"
	"github.com/pixrworth/platform/internal/observability"
	"github.com/pixrworth/platform/internal/plan"
	"github.com/pixrworth/platform/internal/scheduler"
	"github.com/pixrworth/platform/internal/usage"
	"github.com/pixrworth/platform/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the background jobs. The glow-up
		// worker pool runs here so requeued jobs are processed in-process.
		scheduler.Module,
		glowup.Module,
		usage.Module,
		account.Module,
		plan.Module,

		// No server module.
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
