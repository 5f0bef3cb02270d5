package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Occupancy places one tenant into either a flat unit or a PG bed. Rows are
// never deleted; vacating flips IsActive and records EndDate.
type Occupancy struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID            snowflake.ID      `gorm:"column:account_id;not null;index" json:"account_id"`
	BuildingID           snowflake.ID      `gorm:"column:building_id;not null;index" json:"building_id"`
	TenantID             snowflake.ID      `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	UnitID               *snowflake.ID     `gorm:"column:unit_id;index" json:"unit_id"`
	BedID                *snowflake.ID     `gorm:"column:bed_id;index" json:"bed_id"`
	Rent                 int64             `gorm:"not null;default:0" json:"rent"`
	Deposit              int64             `gorm:"not null;default:0" json:"deposit"`
	IsPrimary            bool              `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
	IsActive             bool              `gorm:"column:is_active;not null;default:true" json:"is_active"`
	StartDate            time.Time         `gorm:"column:start_date;type:date;not null" json:"start_date"`
	EndDate              *time.Time        `gorm:"column:end_date;type:date" json:"end_date"`
	NoticeDate           *time.Time        `gorm:"column:notice_date;type:date" json:"notice_date"`
	ExpectedCheckoutDate *time.Time        `gorm:"column:expected_checkout_date;type:date" json:"expected_checkout_date"`
	NoticeReason         string            `gorm:"column:notice_reason;type:text;not null;default:''" json:"notice_reason"`
	NoticePeriodDays     int               `gorm:"column:notice_period_days;not null;default:0" json:"notice_period_days"`
	Notes                string            `gorm:"type:text;not null;default:''" json:"notes"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
}

func (Occupancy) TableName() string { return "occupancies" }

// Target returns the resource the occupancy currently holds.
func (o Occupancy) Target() Target {
	var t Target
	if o.UnitID != nil {
		t.UnitID = *o.UnitID
	}
	if o.BedID != nil {
		t.BedID = *o.BedID
	}
	return t
}

type RentStatus string

const (
	RentPending RentStatus = "PENDING"
	RentPartial RentStatus = "PARTIAL"
	RentPaid    RentStatus = "PAID"
)

// RentEntry is a monthly rent ledger row. The occupancy engine only reads it.
type RentEntry struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID `gorm:"column:account_id;not null;index" json:"account_id"`
	OccupancyID snowflake.ID `gorm:"column:occupancy_id;not null;index" json:"occupancy_id"`
	Month       time.Time    `gorm:"type:date;not null" json:"month"`
	Amount      int64        `gorm:"not null" json:"amount"`
	PaidAmount  int64        `gorm:"column:paid_amount;not null;default:0" json:"paid_amount"`
	Status      RentStatus   `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (RentEntry) TableName() string { return "rent_entries" }

type IssueStatus string

const (
	IssueOpen       IssueStatus = "OPEN"
	IssueAssigned   IssueStatus = "ASSIGNED"
	IssueInProgress IssueStatus = "IN_PROGRESS"
	IssueResolved   IssueStatus = "RESOLVED"
)

// OpenIssueStatuses block a checkout.
var OpenIssueStatuses = []IssueStatus{IssueOpen, IssueAssigned, IssueInProgress}

// Issue is a maintenance complaint raised against a unit.
type Issue struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID  `gorm:"column:account_id;not null;index" json:"account_id"`
	UnitID    snowflake.ID  `gorm:"column:unit_id;not null;index" json:"unit_id"`
	TenantID  *snowflake.ID `gorm:"column:tenant_id;index" json:"tenant_id"`
	Title     string        `gorm:"type:text;not null" json:"title"`
	Status    IssueStatus   `gorm:"type:text;not null;default:'OPEN'" json:"status"`
	Priority  string        `gorm:"type:text;not null;default:'MEDIUM'" json:"priority"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (Issue) TableName() string { return "issues" }

// Target names exactly one assignable resource.
type Target struct {
	UnitID snowflake.ID `json:"unit_id,omitempty"`
	BedID  snowflake.ID `json:"bed_id,omitempty"`
}

func (t Target) Validate() error {
	if (t.UnitID == 0) == (t.BedID == 0) {
		return ErrInvalidAssignmentTarget
	}
	return nil
}

func (t Target) IsBed() bool { return t.BedID != 0 }

func (t Target) ID() snowflake.ID {
	if t.BedID != 0 {
		return t.BedID
	}
	return t.UnitID
}

// Kind is "unit" or "bed".
func (t Target) Kind() string {
	if t.BedID != 0 {
		return "bed"
	}
	return "unit"
}

func (t Target) Equal(other Target) bool {
	return t.UnitID == other.UnitID && t.BedID == other.BedID
}

type NoticeState string

const (
	NoticeNone     NoticeState = "NO_NOTICE"
	NoticeRunning  NoticeState = "IN_NOTICE_PERIOD"
	NoticeEligible NoticeState = "ELIGIBLE"
	NoticeVacated  NoticeState = "VACATED"
)

func ParseNoticeState(raw string) (NoticeState, bool) {
	switch state := NoticeState(raw); state {
	case NoticeNone, NoticeRunning, NoticeEligible, NoticeVacated:
		return state, true
	default:
		return "", false
	}
}

// OccupancyView is an occupancy with its notice state evaluated for today.
type OccupancyView struct {
	Occupancy
	NoticeState   NoticeState `json:"notice_state"`
	DaysRemaining int         `json:"days_remaining"`
	Overdue       bool        `json:"overdue"`
}

// StatusChange records a unit or bed status transition made by the engine.
type StatusChange struct {
	Kind string       `json:"kind"`
	ID   snowflake.ID `json:"id"`
	From string       `json:"from"`
	To   string       `json:"to"`
}

func (c StatusChange) Changed() bool { return c.From != c.To }

// Blocker is one reason a checkout cannot proceed.
type Blocker struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	BlockerPendingRent         = "pending_rent"
	BlockerOpenIssues          = "open_issues"
	BlockerNoticeNotGiven      = "notice_not_given"
	BlockerNoticePeriodRunning = "notice_period_running"
)

// VacateResult is returned by a successful vacate. Warnings lists the
// blockers a forced checkout overrode.
type VacateResult struct {
	Occupancy OccupancyView  `json:"occupancy"`
	Warnings  []Blocker      `json:"warnings"`
	Changes   []StatusChange `json:"status_changes"`
	Promoted  *snowflake.ID  `json:"promoted_occupancy_id"`
}

// NoticeSummary counts notice states of one account's active occupancies.
type NoticeSummary struct {
	AccountID snowflake.ID
	Running   int
	Eligible  int
	Overdue   int
}
