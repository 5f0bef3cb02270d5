package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/clock"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	"github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

// NoticeStateOf evaluates an occupancy's notice state on the given date.
func NoticeStateOf(o domain.Occupancy, today time.Time) domain.NoticeState {
	if !o.IsActive {
		return domain.NoticeVacated
	}
	if o.NoticeDate == nil {
		return domain.NoticeNone
	}
	if !clock.DateOf(today).Before(eligibleDate(o)) {
		return domain.NoticeEligible
	}
	return domain.NoticeRunning
}

func eligibleDate(o domain.Occupancy) time.Time {
	if o.ExpectedCheckoutDate != nil {
		return clock.DateOf(*o.ExpectedCheckoutDate)
	}
	return clock.DateOf(*o.NoticeDate).AddDate(0, 0, o.NoticePeriodDays)
}

func viewOf(o domain.Occupancy, today time.Time) domain.OccupancyView {
	view := domain.OccupancyView{
		Occupancy:   o,
		NoticeState: NoticeStateOf(o, today),
	}
	if view.Metadata == nil {
		view.Metadata = map[string]any{}
	}
	if view.NoticeState == domain.NoticeRunning || view.NoticeState == domain.NoticeEligible {
		remaining := int(eligibleDate(o).Sub(clock.DateOf(today)) / day)
		if remaining > 0 {
			view.DaysRemaining = remaining
		}
		view.Overdue = remaining < 0
	}
	return view
}

// recomputeStatus sets a unit or bed to OCCUPIED while it has an active
// occupancy and VACANT otherwise. It must run in the transaction that
// changed the occupancy rows.
func (s *Service) recomputeStatus(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, target domain.Target) (domain.StatusChange, error) {
	change := domain.StatusChange{Kind: target.Kind(), ID: target.ID()}

	var current string
	if target.IsBed() {
		bed, err := s.repo.FindBed(ctx, tx, accountID, target.BedID)
		if err != nil {
			return change, err
		}
		if bed == nil {
			return change, domain.ErrNotFound
		}
		current = bed.Status
	} else {
		unit, err := s.repo.FindUnit(ctx, tx, accountID, target.UnitID)
		if err != nil {
			return change, err
		}
		if unit == nil {
			return change, domain.ErrNotFound
		}
		current = unit.Status
	}

	active, err := s.repo.CountActive(ctx, tx, target)
	if err != nil {
		return change, err
	}
	next := string(inventorydomain.StatusVacant)
	if active > 0 {
		next = string(inventorydomain.StatusOccupied)
	}

	change.From = current
	change.To = next
	if !change.Changed() {
		return change, nil
	}
	if err := s.repo.SetStatus(ctx, tx, target, next, s.clock.Now()); err != nil {
		return change, err
	}
	return change, nil
}
