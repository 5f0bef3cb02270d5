package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Grant gives one manager access to one building.
type Grant struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID  snowflake.ID `gorm:"column:account_id;not null;index" json:"account_id"`
	ManagerID  snowflake.ID `gorm:"column:manager_id;not null;uniqueIndex:ux_building_access_grants_manager_building,priority:1" json:"manager_id"`
	BuildingID snowflake.ID `gorm:"column:building_id;not null;uniqueIndex:ux_building_access_grants_manager_building,priority:2;index" json:"building_id"`
	GrantedBy  snowflake.ID `gorm:"column:granted_by;not null" json:"granted_by"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Grant) TableName() string { return "building_access_grants" }

// ResourceKind names a building-scoped resource type.
type ResourceKind string

const (
	KindBuilding  ResourceKind = "building"
	KindUnit      ResourceKind = "unit"
	KindPGRoom    ResourceKind = "pg_room"
	KindBed       ResourceKind = "bed"
	KindOccupancy ResourceKind = "occupancy"
	KindRent      ResourceKind = "rent"
	KindIssue     ResourceKind = "issue"
)

func ParseResourceKind(raw string) (ResourceKind, bool) {
	switch kind := ResourceKind(raw); kind {
	case KindBuilding, KindUnit, KindPGRoom, KindBed, KindOccupancy, KindRent, KindIssue:
		return kind, true
	case "room":
		return KindPGRoom, true
	default:
		return "", false
	}
}
