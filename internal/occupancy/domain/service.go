package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

type Service interface {
	Create(ctx context.Context, caller accountdomain.Caller, req CreateRequest) (*OccupancyView, error)
	Reassign(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req ReassignRequest) (*OccupancyView, error)
	Vacate(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req VacateRequest) (*VacateResult, error)
	SetPrimary(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*OccupancyView, error)
	AddCoOccupant(ctx context.Context, caller accountdomain.Caller, unitID snowflake.ID, req AddCoOccupantRequest) (*OccupancyView, error)

	GiveNotice(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req GiveNoticeRequest) (*OccupancyView, error)
	CancelNotice(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*OccupancyView, error)

	Get(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*OccupancyView, error)
	List(ctx context.Context, caller accountdomain.Caller, filter ListFilter) ([]OccupancyView, error)

	// SweepNotices summarises notice states of every active occupancy that has
	// notice, per account, and returns the overdue ones.
	SweepNotices(ctx context.Context) ([]NoticeSummary, []OccupancyView, error)
}

type CreateRequest struct {
	TenantID  snowflake.ID
	Target    Target
	Rent      *int64
	Deposit   *int64
	StartDate *time.Time
	Notes     string
	Metadata  map[string]any
}

type ReassignRequest struct {
	Target Target
	Rent   *int64
}

type VacateRequest struct {
	EndDate *time.Time
	Force   bool
	Reason  string
}

type AddCoOccupantRequest struct {
	TenantID  snowflake.ID
	Deposit   *int64
	StartDate *time.Time
	Notes     string
}

type GiveNoticeRequest struct {
	NoticeDate *time.Time
	Reason     string
}

type ListFilter struct {
	BuildingID  snowflake.ID
	TenantID    snowflake.ID
	Active      *bool
	NoticeState NoticeState
}
