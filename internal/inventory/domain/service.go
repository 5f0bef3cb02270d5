package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

type Service interface {
	CreateBuilding(ctx context.Context, caller accountdomain.Caller, req CreateBuildingRequest) (*Building, error)
	ListBuildings(ctx context.Context, caller accountdomain.Caller) ([]BuildingView, error)
	GetBuilding(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*BuildingView, error)
	UpdateNoticePeriod(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, days int) (*Building, error)

	CreateUnit(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID, req CreateUnitRequest) (*Unit, error)
	ListUnits(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) ([]Unit, error)

	CreateRoom(ctx context.Context, caller accountdomain.Caller, unitID snowflake.ID, req CreateRoomRequest) (*PGRoom, error)
	CreateBed(ctx context.Context, caller accountdomain.Caller, roomID snowflake.ID, req CreateBedRequest) (*Bed, error)
	ListBeds(ctx context.Context, caller accountdomain.Caller, roomID snowflake.ID) ([]Bed, error)
}

type CreateBuildingRequest struct {
	Name             string `json:"name"`
	Address          string `json:"address"`
	TotalFloors      int    `json:"total_floors"`
	NoticePeriodDays *int   `json:"notice_period_days"`
}

type CreateUnitRequest struct {
	UnitNumber   string   `json:"unit_number"`
	UnitType     UnitType `json:"unit_type"`
	BHKType      string   `json:"bhk_type"`
	ExpectedRent int64    `json:"expected_rent"`
	Deposit      int64    `json:"deposit"`
}

type CreateRoomRequest struct {
	RoomNumber   string `json:"room_number"`
	SharingCount int    `json:"sharing_count"`
}

type CreateBedRequest struct {
	BedNumber string `json:"bed_number"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidFloors       = errors.New("invalid_total_floors")
	ErrInvalidNoticePeriod = errors.New("invalid_notice_period")
	ErrInvalidUnitNumber   = errors.New("invalid_unit_number")
	ErrInvalidUnitType     = errors.New("invalid_unit_type")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidRoomNumber   = errors.New("invalid_room_number")
	ErrInvalidSharingCount = errors.New("invalid_sharing_count")
	ErrInvalidBedNumber    = errors.New("invalid_bed_number")
	ErrUnitNotPG           = errors.New("unit_not_pg")
	ErrRoomFull            = errors.New("room_full")
	ErrBuildingExists      = errors.New("building_exists")
	ErrUnitExists          = errors.New("unit_exists")
	ErrRoomExists          = errors.New("room_exists")
	ErrBedExists           = errors.New("bed_exists")
)
