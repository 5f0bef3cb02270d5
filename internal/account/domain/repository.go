package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, account *Account) error
	FindAccountBySlug(ctx context.Context, db *gorm.DB, slug string) (*Account, error)
	FindAccountByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	FindMember(ctx context.Context, db *gorm.DB, accountID, memberID snowflake.ID) (*Member, error)
	FindMemberByID(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*Member, error)
	ListMembers(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Member, error)

	InsertAPIKey(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindAPIKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) error
}
