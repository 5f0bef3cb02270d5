package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/pkg/db/pagination"
	"gorm.io/datatypes"
)

// Tenant is a person who can be placed into a flat or a bed. Tenants are
// shared across all buildings of an account.
type Tenant struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID        snowflake.ID      `gorm:"column:account_id;not null;index:ix_tenants_account_name,priority:1" json:"account_id"`
	Name             string            `gorm:"type:text;not null;index:ix_tenants_account_name,priority:2" json:"name"`
	Phone            string            `gorm:"type:text;not null" json:"phone"`
	Email            string            `gorm:"type:text;not null;default:''" json:"email"`
	IDProofType      string            `gorm:"column:id_proof_type;type:text;not null;default:''" json:"id_proof_type"`
	IDProofNumber    string            `gorm:"column:id_proof_number;type:text;not null;default:''" json:"id_proof_number"`
	Address          string            `gorm:"type:text;not null;default:''" json:"address"`
	EmergencyContact string            `gorm:"column:emergency_contact;type:text;not null;default:''" json:"emergency_contact"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

type Service interface {
	Create(ctx context.Context, caller accountdomain.Caller, req CreateTenantRequest) (*Tenant, error)
	Get(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, caller accountdomain.Caller, req ListTenantRequest) (ListTenantResponse, error)
}

type CreateTenantRequest struct {
	Name             string         `json:"name"`
	Phone            string         `json:"phone"`
	Email            string         `json:"email"`
	IDProofType      string         `json:"id_proof_type"`
	IDProofNumber    string         `json:"id_proof_number"`
	Address          string         `json:"address"`
	EmergencyContact string         `json:"emergency_contact"`
	Metadata         map[string]any `json:"metadata"`
}

type ListTenantRequest struct {
	pagination.Pagination
	Name string
}

type ListTenantResponse struct {
	pagination.PageInfo
	Tenants []Tenant `json:"tenants"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPhone     = errors.New("invalid_phone")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
)
