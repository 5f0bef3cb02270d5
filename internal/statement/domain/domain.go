package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"gorm.io/gorm"
)

var ErrRenderFailed = errors.New("statement_render_failed")

// Document is a rendered statement ready to stream.
type Document struct {
	Filename string
	Body     io.Reader
}

type Service interface {
	Render(ctx context.Context, caller accountdomain.Caller, occupancyID snowflake.ID) (*Document, error)
}

type TenantContact struct {
	Name  string
	Phone string
	Email string
}

// Location names the building and resource an occupancy sits on. Room and
// bed numbers are empty for a flat.
type Location struct {
	BuildingName    string
	BuildingAddress string
	UnitID          snowflake.ID
	UnitNumber      string
	RoomNumber      string
	BedNumber       string
}

type Repository interface {
	FindTenantContact(ctx context.Context, db *gorm.DB, accountID, tenantID snowflake.ID) (*TenantContact, error)
	FindLocation(ctx context.Context, db *gorm.DB, accountID snowflake.ID, target occupancydomain.Target) (*Location, error)
	ListRentEntries(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID) ([]occupancydomain.RentEntry, error)
	CountOpenIssues(ctx context.Context, db *gorm.DB, unitID, tenantID snowflake.ID) (int64, error)
}

// Totals summarises the rent ledger of one occupancy.
type Totals struct {
	Billed      int64
	Paid        int64
	Outstanding int64
	Unsettled   int
}

func Summarise(entries []occupancydomain.RentEntry) Totals {
	var t Totals
	for _, e := range entries {
		t.Billed += e.Amount
		t.Paid += e.PaidAmount
		if e.Status != occupancydomain.RentPaid {
			t.Unsettled++
		}
	}
	if t.Billed > t.Paid {
		t.Outstanding = t.Billed - t.Paid
	}
	return t
}

// MonthLabel renders a ledger month such as "Jun 2024".
func MonthLabel(month time.Time) string {
	return month.UTC().Format("Jan 2006")
}
