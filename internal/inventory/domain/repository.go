package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UnitCounts struct {
	BuildingID snowflake.ID
	Total      int64
	Occupied   int64
}

type Repository interface {
	InsertBuilding(ctx context.Context, db *gorm.DB, building *Building) error
	FindBuilding(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Building, error)
	ListBuildings(ctx context.Context, db *gorm.DB, accountID snowflake.ID, ids []snowflake.ID) ([]Building, error)
	UnitCounts(ctx context.Context, db *gorm.DB, accountID snowflake.ID, buildingIDs []snowflake.ID) ([]UnitCounts, error)
	UpdateNoticePeriod(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, days int, updatedAt time.Time) error

	InsertUnit(ctx context.Context, db *gorm.DB, unit *Unit) error
	FindUnit(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Unit, error)
	ListUnits(ctx context.Context, db *gorm.DB, accountID, buildingID snowflake.ID) ([]Unit, error)

	InsertRoom(ctx context.Context, db *gorm.DB, room *PGRoom) error
	FindRoom(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*PGRoom, error)
	CountBeds(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (int64, error)

	InsertBed(ctx context.Context, db *gorm.DB, bed *Bed) error
	FindBed(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Bed, error)
	ListBeds(ctx context.Context, db *gorm.DB, accountID, roomID snowflake.ID) ([]Bed, error)
}
