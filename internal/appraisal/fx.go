package appraisal

import (
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/appraisal/domain"
	"github.com/pixrworth/platform/internal/appraisal/provider"
	"github.com/pixrworth/platform/internal/appraisal/repository"
	"github.com/pixrworth/platform/internal/appraisal/service"
	"github.com/pixrworth/platform/internal/clock"
	"github.com/pixrworth/platform/internal/config"
)

var Module = fx.Module("appraisal",
	fx.Provide(repository.New),
	fx.Provide(provideProvider),
	fx.Provide(service.NewService),
)

func provideProvider(cfg config.Config, clk clock.Clock) domain.Provider {
	if cfg.Appraisal.Provider == "housecanary" && cfg.Appraisal.APIKey != "" {
		return provider.NewHouseCanary(cfg.Appraisal, clk)
	}
	return provider.NewMock(clk)
}
