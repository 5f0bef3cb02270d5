package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TenantRef struct {
	ID        snowflake.ID
	AccountID snowflake.ID
	Name      string
}

type UnitRef struct {
	ID           snowflake.ID
	AccountID    snowflake.ID
	BuildingID   snowflake.ID
	UnitType     string
	ExpectedRent int64
	Status       string
}

// BedRef is a bed with the PG unit that contains it.
type BedRef struct {
	ID         snowflake.ID
	AccountID  snowflake.ID
	UnitID     snowflake.ID
	BuildingID snowflake.ID
	Status     string
}

type QueryFilter struct {
	BuildingIDs []snowflake.ID
	TenantID    snowflake.ID
	Active      *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, o *Occupancy) error
	Update(ctx context.Context, db *gorm.DB, o *Occupancy) error
	SetRole(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, isPrimary bool, rent int64, updatedAt time.Time) error
	Find(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Occupancy, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter QueryFilter) ([]Occupancy, error)
	FindActiveByTenant(ctx context.Context, db *gorm.DB, accountID, tenantID snowflake.ID) (*Occupancy, error)
	ListActiveOnUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]Occupancy, error)
	CountActive(ctx context.Context, db *gorm.DB, target Target) (int64, error)
	ListActiveWithNotice(ctx context.Context, db *gorm.DB) ([]Occupancy, error)

	FindTenant(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*TenantRef, error)
	FindUnit(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*UnitRef, error)
	FindBed(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*BedRef, error)
	BuildingNoticePeriod(ctx context.Context, db *gorm.DB, accountID, buildingID snowflake.ID) (int, error)
	SetStatus(ctx context.Context, db *gorm.DB, target Target, status string, now time.Time) error

	CountPendingRent(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID) (int64, error)
	CountOpenIssues(ctx context.Context, db *gorm.DB, unitID, tenantID snowflake.ID) (int64, error)
}
