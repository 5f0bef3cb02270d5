// Package domain holds the tenancy model: accounts, their members and the
// API keys members authenticate with.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleManager Role = "MANAGER"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleManager
}

// Account is one independent customer of the deployment.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_accounts_slug" json:"slug"`
	Plan      string       `gorm:"type:text;not null;default:'basic'" json:"plan"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Member is a person acting inside an account.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"column:account_id;not null;index;uniqueIndex:ux_account_members_email,priority:1" json:"account_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_account_members_email,priority:2" json:"email"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Member) TableName() string { return "account_members" }

// APIKey stores the sha256 of a bearer token issued to a member.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	AccountID  snowflake.ID `gorm:"column:account_id;not null;index"`
	MemberID   snowflake.ID `gorm:"column:member_id;not null;index"`
	KeyID      string       `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_api_keys_key_id"`
	Name       string       `gorm:"type:text;not null"`
	KeyHash    string       `gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_api_keys_key_hash"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time   `gorm:"column:expires_at"`
}

func (APIKey) TableName() string { return "api_keys" }

// Caller is the authenticated identity of a request.
type Caller struct {
	AccountID snowflake.ID
	MemberID  snowflake.ID
	Role      Role
}

func (c Caller) IsOwner() bool {
	return c.AccountID != 0 && c.Role == RoleOwner
}
