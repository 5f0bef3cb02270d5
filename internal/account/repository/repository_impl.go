package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, name, slug, plan, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		account.Slug,
		account.Plan,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindAccountBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, is_active, created_at, updated_at
		 FROM accounts WHERE slug = ?`,
		slug,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindAccountByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, is_active, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO account_members (id, account_id, name, email, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.AccountID,
		member.Name,
		member.Email,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, accountID, memberID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, name, email, role, created_at
		 FROM account_members WHERE account_id = ? AND id = ?`,
		accountID,
		memberID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

// FindMemberByID looks a member up across accounts; callers compare the
// account themselves to tell "missing" from "foreign".
func (r *repo) FindMemberByID(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, name, email, role, created_at
		 FROM account_members WHERE id = ?`,
		memberID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) ListMembers(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]domain.Member, error) {
	var members []domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, name, email, role, created_at
		 FROM account_members WHERE account_id = ? ORDER BY created_at ASC, id ASC`,
		accountID,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repo) InsertAPIKey(ctx context.Context, db *gorm.DB, key *domain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, account_id, member_id, key_id, name, key_hash, is_active, created_at, last_used_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.AccountID,
		key.MemberID,
		key.KeyID,
		key.Name,
		key.KeyHash,
		key.IsActive,
		key.CreatedAt,
		key.LastUsedAt,
		key.ExpiresAt,
	).Error
}

func (r *repo) FindAPIKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, member_id, key_id, name, key_hash, is_active, created_at, last_used_at, expires_at
		 FROM api_keys WHERE key_hash = ?`,
		hash,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) TouchAPIKey(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		usedAt,
		id,
	).Error
}
