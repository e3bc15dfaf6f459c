package property

import (
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/property/repository"
)

var Module = fx.Module("property",
	fx.Provide(repository.New),
)
