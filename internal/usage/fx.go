package usage

import (
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/usage/period"
	"github.com/pixrworth/platform/internal/usage/service"
)

var Module = fx.Module("usage",
	fx.Provide(period.NewCalculator),
	fx.Provide(service.NewService),
)
