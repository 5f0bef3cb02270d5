package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	tenantdomain "github.com/smallbiznis/kiraya/internal/tenant/domain"
	pkgdb "github.com/smallbiznis/kiraya/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&accountdomain.Member{},
		&accountdomain.APIKey{},
		&inventorydomain.Building{},
		&accessdomain.Grant{},
		&inventorydomain.Unit{},
		&inventorydomain.PGRoom{},
		&inventorydomain.Bed{},
		&tenantdomain.Tenant{},
		&occupancydomain.Occupancy{},
		&occupancydomain.RentEntry{},
		&occupancydomain.Issue{},
		&auditdomain.AuditLog{},
	}
}

// occupancyIndexes back the one-active-occupant rules on dialects that
// support partial indexes.
var occupancyIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_occupancies_active_bed ON occupancies (bed_id) WHERE is_active AND bed_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_occupancies_active_primary_unit ON occupancies (unit_id) WHERE is_active AND is_primary AND unit_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_occupancies_active_tenant ON occupancies (tenant_id) WHERE is_active`,
}

// AutoMigrate builds the schema from the models for sqlite and mysql. MySQL
// has no partial indexes, so there the row locks alone keep occupancy
// exclusive.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if pkgdb.DialectName(db) != pkgdb.DialectSQLite {
		return nil
	}
	for _, stmt := range occupancyIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create occupancy index: %w", err)
		}
	}
	return nil
}
