package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeMember ActorType = "member"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is an append-only record of a privileged or overriding action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID  snowflake.ID      `gorm:"column:account_id;not null;index:ix_audit_logs_account_created,priority:1" json:"account_id"`
	BuildingID *snowflake.ID     `gorm:"column:building_id;index" json:"building_id,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_account_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry describes an audit row to write. Zero-valued actor fields fall back
// to the actor stored on the request context, then to "system".
type Entry struct {
	AccountID  snowflake.ID
	BuildingID snowflake.ID
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	AccountID snowflake.ID
	// BuildingIDs, when non-nil, restricts results to rows tagged with one of
	// these buildings. An empty non-nil slice matches nothing.
	BuildingIDs []snowflake.ID
	Action      string
	TargetType  string
	TargetID    string
	StartAt     *time.Time
	EndAt       *time.Time
	Cursor      *AuditCursor
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
