package migration

import (
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kiraya/internal/config"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)

	initSQL, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	for _, index := range []string{"ux_occupancies_active_bed", "ux_occupancies_active_primary_unit", "ux_occupancies_active_tenant"} {
		assert.Contains(t, string(initSQL), index)
	}
}

func TestMigrateSkipsWhenAutoMigrateOff(t *testing.T) {
	db := openDB(t)
	require.NoError(t, Migrate(db, config.Config{DBType: "sqlite", DBAutoMigrate: false}))
	assert.False(t, db.Migrator().HasTable("occupancies"))
}

func TestAutoMigrateEnforcesOneActiveOccupantPerBed(t *testing.T) {
	db := openDB(t)
	require.NoError(t, Migrate(db, config.Config{DBType: "sqlite", DBAutoMigrate: true}))
	require.NoError(t, AutoMigrate(db), "re-running is a no-op")

	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}

	bed := int64(4000)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	insert := `INSERT INTO occupancies (id, account_id, building_id, tenant_id, bed_id, rent, is_primary, is_active, start_date, metadata, created_at, updated_at)
		VALUES (?, 1, 100, ?, ?, 5000, false, ?, ?, '{}', ?, ?)`

	require.NoError(t, db.Exec(insert, 1, 501, bed, true, now, now, now).Error)
	require.Error(t, db.Exec(insert, 2, 502, bed, true, now, now, now).Error)
	require.NoError(t, db.Exec(insert, 3, 503, bed, false, now, now, now).Error, "inactive history rows do not collide")

	var count int64
	require.NoError(t, db.Model(&occupancydomain.Occupancy{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
