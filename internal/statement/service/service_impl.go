package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dustin/go-humanize"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/providers/pdf"
	"github.com/smallbiznis/kiraya/internal/statement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Repo         domain.Repository
	OccupancySvc occupancydomain.Service
	PDF          pdf.Provider
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         domain.Repository
	occupancySvc occupancydomain.Service
	pdf          pdf.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("statement.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		occupancySvc: p.OccupancySvc,
		pdf:          p.PDF,
	}
}

// Render builds the move-out statement of an occupancy. Access is checked by
// the occupancy read.
func (s *Service) Render(ctx context.Context, caller accountdomain.Caller, occupancyID snowflake.ID) (*domain.Document, error) {
	view, err := s.occupancySvc.Get(ctx, caller, occupancyID)
	if err != nil {
		return nil, err
	}

	data, err := s.build(ctx, *view)
	if err != nil {
		return nil, err
	}

	body, err := s.pdf.GenerateStatement(ctx, data)
	if err != nil {
		s.log.Error("failed to render statement", zap.String("occupancy_id", occupancyID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	return &domain.Document{
		Filename: "statement-" + occupancyID.String() + ".pdf",
		Body:     body,
	}, nil
}

func (s *Service) build(ctx context.Context, view occupancydomain.OccupancyView) (pdf.StatementData, error) {
	o := view.Occupancy
	db := s.db.WithContext(ctx)

	tenant, err := s.repo.FindTenantContact(ctx, db, o.AccountID, o.TenantID)
	if err != nil {
		return pdf.StatementData{}, err
	}
	if tenant == nil {
		return pdf.StatementData{}, occupancydomain.ErrTenantNotFound
	}
	target := o.Target()
	location, err := s.repo.FindLocation(ctx, db, o.AccountID, target)
	if err != nil {
		return pdf.StatementData{}, err
	}
	if location == nil {
		return pdf.StatementData{}, occupancydomain.ErrNotFound
	}
	entries, err := s.repo.ListRentEntries(ctx, db, o.ID)
	if err != nil {
		return pdf.StatementData{}, err
	}
	issues, err := s.repo.CountOpenIssues(ctx, db, location.UnitID, o.TenantID)
	if err != nil {
		return pdf.StatementData{}, err
	}

	totals := domain.Summarise(entries)
	data := pdf.StatementData{
		Title:            "Move-out statement",
		GeneratedAt:      s.clock.Now().UTC().Format(dateLayout),
		BuildingName:     location.BuildingName,
		BuildingAddress:  location.BuildingAddress,
		ResourceLabel:    resourceLabel(*location, target),
		TenantName:       tenant.Name,
		TenantPhone:      tenant.Phone,
		TenantEmail:      tenant.Email,
		OccupancyID:      o.ID.String(),
		Status:           statusLabel(o),
		NoticeState:      string(view.NoticeState),
		StartDate:        formatDate(&o.StartDate),
		EndDate:          formatDate(o.EndDate),
		NoticeDate:       formatDate(o.NoticeDate),
		ExpectedCheckout: formatDate(o.ExpectedCheckoutDate),
		Rent:             money(o.Rent),
		Deposit:          money(o.Deposit),
		TotalDue:         money(totals.Billed),
		TotalPaid:        money(totals.Paid),
		Outstanding:      money(totals.Outstanding),
	}
	for _, e := range entries {
		data.Entries = append(data.Entries, pdf.StatementEntry{
			Month:  domain.MonthLabel(e.Month),
			Amount: money(e.Amount),
			Paid:   money(e.PaidAmount),
			Status: string(e.Status),
		})
	}
	if totals.Unsettled > 0 {
		data.Blockers = append(data.Blockers, strconv.Itoa(totals.Unsettled)+" rent entries are not fully paid")
	}
	if issues > 0 {
		data.Blockers = append(data.Blockers, strconv.FormatInt(issues, 10)+" maintenance issues are still open")
	}
	if o.IsActive && o.NoticeDate == nil {
		data.Blockers = append(data.Blockers, "notice has not been given")
	}
	return data, nil
}

func resourceLabel(loc domain.Location, target occupancydomain.Target) string {
	if target.IsBed() {
		return fmt.Sprintf("Unit %s, Room %s, Bed %s", loc.UnitNumber, loc.RoomNumber, loc.BedNumber)
	}
	return "Flat " + loc.UnitNumber
}

func statusLabel(o occupancydomain.Occupancy) string {
	switch {
	case !o.IsActive:
		return "VACATED"
	case o.UnitID != nil && o.IsPrimary:
		return "ACTIVE (primary)"
	case o.UnitID != nil:
		return "ACTIVE (co-occupant)"
	default:
		return "ACTIVE"
	}
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func money(v int64) string {
	return humanize.Comma(v)
}
