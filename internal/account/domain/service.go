package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResponse, error)
	AddMember(ctx context.Context, caller Caller, req AddMemberRequest) (*Member, error)
	ListMembers(ctx context.Context, caller Caller) ([]Member, error)
	GetMember(ctx context.Context, accountID, memberID snowflake.ID) (*Member, error)
	IssueAPIKey(ctx context.Context, caller Caller, memberID snowflake.ID, name string) (*SecretResponse, error)
	ResolveAPIKey(ctx context.Context, raw string) (Caller, error)
}

type CreateAccountRequest struct {
	Name       string `json:"name"`
	Plan       string `json:"plan"`
	OwnerName  string `json:"owner_name"`
	OwnerEmail string `json:"owner_email"`
}

type CreateAccountResponse struct {
	Account Account        `json:"account"`
	Owner   Member         `json:"owner"`
	APIKey  SecretResponse `json:"api_key"`
}

type AddMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrAccountExists  = errors.New("account_exists")
	ErrMemberExists   = errors.New("member_exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrMemberNotFound = errors.New("member_not_found")
)
