package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type UnitType string

const (
	UnitTypeFlat UnitType = "FLAT"
	UnitTypePG   UnitType = "PG"
)

func (t UnitType) Valid() bool {
	return t == UnitTypeFlat || t == UnitTypePG
}

// Status mirrors whether a unit or bed has an active occupancy. Only the
// occupancy engine writes it after creation.
type Status string

const (
	StatusVacant   Status = "VACANT"
	StatusOccupied Status = "OCCUPIED"
)

type Building struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID        snowflake.ID `gorm:"column:account_id;not null;index;uniqueIndex:ux_buildings_account_slug,priority:1" json:"account_id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	Slug             string       `gorm:"type:text;not null;uniqueIndex:ux_buildings_account_slug,priority:2" json:"slug"`
	Address          string       `gorm:"type:text;not null;default:''" json:"address"`
	TotalFloors      int          `gorm:"column:total_floors;not null;default:1" json:"total_floors"`
	NoticePeriodDays int          `gorm:"column:notice_period_days;not null;default:30" json:"notice_period_days"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Building) TableName() string { return "buildings" }

type Unit struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID    snowflake.ID `gorm:"column:account_id;not null;index" json:"account_id"`
	BuildingID   snowflake.ID `gorm:"column:building_id;not null;uniqueIndex:ux_units_building_number,priority:1" json:"building_id"`
	UnitNumber   string       `gorm:"column:unit_number;type:text;not null;uniqueIndex:ux_units_building_number,priority:2" json:"unit_number"`
	UnitType     UnitType     `gorm:"column:unit_type;type:text;not null" json:"unit_type"`
	BHKType      string       `gorm:"column:bhk_type;type:text;not null;default:''" json:"bhk_type"`
	ExpectedRent int64        `gorm:"column:expected_rent;not null;default:0" json:"expected_rent"`
	Deposit      int64        `gorm:"not null;default:0" json:"deposit"`
	Status       Status       `gorm:"type:text;not null;default:'VACANT'" json:"status"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Unit) TableName() string { return "units" }

type PGRoom struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID    snowflake.ID `gorm:"column:account_id;not null;index" json:"account_id"`
	UnitID       snowflake.ID `gorm:"column:unit_id;not null;uniqueIndex:ux_pg_rooms_unit_number,priority:1" json:"unit_id"`
	RoomNumber   string       `gorm:"column:room_number;type:text;not null;uniqueIndex:ux_pg_rooms_unit_number,priority:2" json:"room_number"`
	SharingCount int          `gorm:"column:sharing_count;not null" json:"sharing_count"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PGRoom) TableName() string { return "pg_rooms" }

type Bed struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"column:account_id;not null;index" json:"account_id"`
	RoomID    snowflake.ID `gorm:"column:room_id;not null;uniqueIndex:ux_beds_room_number,priority:1" json:"room_id"`
	BedNumber string       `gorm:"column:bed_number;type:text;not null;uniqueIndex:ux_beds_room_number,priority:2" json:"bed_number"`
	Status    Status       `gorm:"type:text;not null;default:'VACANT'" json:"status"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Bed) TableName() string { return "beds" }

// BuildingView is a building with its unit occupancy counts.
type BuildingView struct {
	Building
	TotalUnits    int64 `json:"total_units"`
	OccupiedUnits int64 `json:"occupied_units"`
	VacantUnits   int64 `json:"vacant_units"`
}
