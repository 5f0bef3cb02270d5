package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Owner is the account and building a resource row belongs to.
type Owner struct {
	AccountID  snowflake.ID
	BuildingID snowflake.ID
}

type Repository interface {
	AccountBuildingIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]snowflake.ID, error)
	GrantedBuildingIDs(ctx context.Context, db *gorm.DB, accountID, managerID snowflake.ID) ([]snowflake.ID, error)
	HasGrant(ctx context.Context, db *gorm.DB, accountID, managerID, buildingID snowflake.ID) (bool, error)
	ResourceIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind ResourceKind, buildingIDs []snowflake.ID) ([]snowflake.ID, error)
	OwnerOf(ctx context.Context, db *gorm.DB, kind ResourceKind, id snowflake.ID) (*Owner, error)
	FindMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*MemberRef, error)

	InsertGrant(ctx context.Context, db *gorm.DB, grant *Grant) error
	DeleteGrant(ctx context.Context, db *gorm.DB, accountID, managerID, buildingID snowflake.ID) (int64, error)
	ListGrants(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter GrantFilter) ([]Grant, error)
}

// MemberRef is the slice of a member row the grant store needs.
type MemberRef struct {
	ID        snowflake.ID
	AccountID snowflake.ID
	Role      string
}
