package account

import (
	"go.uber.org/fx"

	"github.com/pixrworth/platform/internal/account/repository"
)

var Module = fx.Module("account",
	fx.Provide(repository.New),
)
