package glowup

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/glowup/domain"
	"github.com/pixrworth/platform/internal/glowup/provider"
	"github.com/pixrworth/platform/internal/glowup/repository"
	"github.com/pixrworth/platform/internal/glowup/service"
)

var Module = fx.Module("glowup",
	fx.Provide(repository.New),
	fx.Provide(provideProvider),
	fx.Provide(service.NewService),
)

func provideProvider(cfg config.Config, log *zap.Logger) (domain.ImageProvider, error) {
	if cfg.GlowUp.Provider == "replicate" {
		return provider.NewReplicate(cfg.GlowUp)
	}
	return provider.NewFake(log), nil
}
