package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

// Service resolves which buildings, and resources under them, a caller may
// touch. Every check fails closed.
type Service interface {
	AccessibleBuildings(ctx context.Context, caller accountdomain.Caller) ([]snowflake.ID, error)
	CanAccess(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) (bool, error)
	AccessibleResourceIDs(ctx context.Context, caller accountdomain.Caller, kind ResourceKind) ([]snowflake.ID, error)
	Authorize(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) error
	BuildingOf(ctx context.Context, kind ResourceKind, id snowflake.ID) (snowflake.ID, snowflake.ID, error)
	// AuthorizeResource combines BuildingOf and Authorize and also rejects rows
	// belonging to another account. It returns the owning building.
	AuthorizeResource(ctx context.Context, caller accountdomain.Caller, kind ResourceKind, id snowflake.ID) (snowflake.ID, error)

	GrantBuildingAccess(ctx context.Context, caller accountdomain.Caller, managerID, buildingID snowflake.ID) (*Grant, error)
	RevokeBuildingAccess(ctx context.Context, caller accountdomain.Caller, managerID, buildingID snowflake.ID) error
	ListGrants(ctx context.Context, caller accountdomain.Caller, filter GrantFilter) ([]Grant, error)
}

type GrantFilter struct {
	ManagerID  snowflake.ID
	BuildingID snowflake.ID
}

var (
	ErrPermissionDenied  = errors.New("permission_denied")
	ErrInvalidGrantee    = errors.New("invalid_grantee")
	ErrGranteeIsOwner    = errors.New("grantee_is_owner")
	ErrGrantExists       = errors.New("grant_exists")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidKind       = errors.New("invalid_resource_kind")
	ErrInvalidBuildingID = errors.New("invalid_building_id")
)
