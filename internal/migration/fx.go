package migration

import (
	"context"
	"strings"

	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/seed"
	pkgdb "github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, accountSvc accountdomain.Service, log *zap.Logger) error {
		if err := Migrate(conn, cfg); err != nil {
			return err
		}
		_, err := seed.EnsureBootstrapAccount(context.Background(), accountSvc, cfg.Bootstrap, log)
		return err
	}),
)

// Migrate runs versioned migrations on postgres and model auto-migration on
// the other dialects when DATABASE_AUTO_MIGRATE is on.
func Migrate(conn *gorm.DB, cfg config.Config) error {
	if strings.EqualFold(cfg.DBType, pkgdb.DialectPostgres) {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	if !cfg.DBAutoMigrate {
		return nil
	}
	return AutoMigrate(conn)
}
