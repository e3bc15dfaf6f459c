package migration

import (
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// The sqlite dialect is only used by tests, which migrate
		// their own schema through gorm.
		if strings.EqualFold(conn.Dialector.Name(), "sqlite") {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
