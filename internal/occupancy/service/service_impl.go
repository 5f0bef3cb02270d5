package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/softlock"
	pkgdb "github.com/smallbiznis/kiraya/pkg/db"
	"github.com/smallbiznis/kiraya/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opCreate        = "create"
	opReassign      = "reassign"
	opVacate        = "vacate"
	opForceVacate   = "force_vacate"
	opSetPrimary    = "set_primary"
	opAddCoOccupant = "add_co_occupant"
	opGiveNotice    = "give_notice"
	opCancelNotice  = "cancel_notice"

	auditActionForceCheckout = "occupancy.force_checkout"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	AccessSvc        accessdomain.Service
	AuditSvc         auditdomain.Service
	SoftLock         *softlock.Service         `optional:"true"`
	Policy           *config.PolicyHolder      `optional:"true"`
	Metrics          *metrics.Metrics          `optional:"true"`
	OccupancyMetrics *metrics.OccupancyMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	accessSvc  accessdomain.Service
	auditSvc   auditdomain.Service
	softlock   *softlock.Service
	metrics    *metrics.Metrics
	occMetrics *metrics.OccupancyMetrics
	locker     *Locker
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("occupancy.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		accessSvc:  p.AccessSvc,
		auditSvc:   p.AuditSvc,
		softlock:   p.SoftLock,
		metrics:    p.Metrics,
		occMetrics: p.OccupancyMetrics,
		locker:     NewLocker(p.Log, p.Policy, p.OccupancyMetrics),
	}
}

func (s *Service) Create(ctx context.Context, caller accountdomain.Caller, req domain.CreateRequest) (*domain.OccupancyView, error) {
	target := req.Target
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := validateAmounts(req.Rent, req.Deposit); err != nil {
		return nil, err
	}
	if target.IsBed() && req.Rent == nil {
		return nil, domain.ErrRentRequired
	}

	buildingID, err := s.accessSvc.AuthorizeResource(ctx, caller, accessKind(target), target.ID())
	if err != nil {
		return nil, err
	}
	tenant, err := s.findTenant(ctx, caller.AccountID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotEdited(ctx, caller, editingKind(target), target.ID()); err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	start := today
	if req.StartDate != nil {
		start = clock.DateOf(*req.StartDate)
	}
	now := s.clock.Now()

	occ := domain.Occupancy{
		ID:         s.genID.Generate(),
		AccountID:  caller.AccountID,
		BuildingID: buildingID,
		TenantID:   tenant.ID,
		IsActive:   true,
		StartDate:  start,
		Notes:      strings.TrimSpace(req.Notes),
		Metadata:   metadataOf(req.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Deposit != nil {
		occ.Deposit = *req.Deposit
	}

	var change domain.StatusChange
	refs := []LockRef{targetRef(target), {Kind: LockTenant, ID: tenant.ID}}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		if err := s.ensureTenantFree(ctx, tx, caller.AccountID, tenant.ID); err != nil {
			return err
		}

		if target.IsBed() {
			bed, err := s.repo.FindBed(ctx, tx, caller.AccountID, target.BedID)
			if err != nil {
				return err
			}
			if bed == nil {
				return domain.ErrNotFound
			}
			if err := s.ensureVacant(ctx, tx, target); err != nil {
				return err
			}
			bedID := bed.ID
			occ.BedID = &bedID
			occ.Rent = *req.Rent
		} else {
			unit, err := s.flatUnit(ctx, tx, caller.AccountID, target.UnitID, domain.ErrInvalidAssignmentTarget)
			if err != nil {
				return err
			}
			actives, err := s.repo.ListActiveOnUnit(ctx, tx, unit.ID)
			if err != nil {
				return err
			}
			if hasPrimary(actives) {
				s.occMetrics.IncConflict(metrics.ConflictOccupied)
				return domain.ErrResourceAlreadyOccupied
			}
			unitID := unit.ID
			occ.UnitID = &unitID
			occ.IsPrimary = true
			occ.Rent = unit.ExpectedRent
			if req.Rent != nil {
				occ.Rent = *req.Rent
			}
		}

		if err := s.insert(ctx, tx, &occ); err != nil {
			return err
		}
		change, err = s.recomputeStatus(ctx, tx, caller.AccountID, target)
		return err
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opCreate, target.Kind())
	s.log.Info("occupancy created",
		zap.String("occupancy_id", occ.ID.String()),
		zap.String("tenant_id", occ.TenantID.String()),
		zap.String("target_kind", target.Kind()),
		zap.String("target_id", target.ID().String()),
		zap.String("status_from", change.From),
		zap.String("status_to", change.To),
	)

	view := viewOf(occ, today)
	return &view, nil
}

func (s *Service) Reassign(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req domain.ReassignRequest) (*domain.OccupancyView, error) {
	target := req.Target
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := validateAmounts(req.Rent, nil); err != nil {
		return nil, err
	}

	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id); err != nil {
		return nil, err
	}
	newBuildingID, err := s.accessSvc.AuthorizeResource(ctx, caller, accessKind(target), target.ID())
	if err != nil {
		return nil, err
	}
	current, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	oldTarget := current.Target()
	if oldTarget.Equal(target) {
		return nil, domain.ErrInvalidAssignmentTarget
	}
	if err := s.ensureNotEdited(ctx, caller, editingKind(target), target.ID()); err != nil {
		return nil, err
	}
	if err := s.ensureNotEdited(ctx, caller, softlock.KindOccupancy, id); err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	now := s.clock.Now()

	var (
		occ      *domain.Occupancy
		changes  []domain.StatusChange
		promoted *snowflake.ID
	)
	refs := []LockRef{{Kind: LockOccupancy, ID: id}, targetRef(oldTarget), targetRef(target)}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		var err error
		occ, err = s.lockedActive(ctx, tx, caller.AccountID, id, oldTarget)
		if err != nil {
			return err
		}
		wasFlatPrimary := !oldTarget.IsBed() && occ.IsPrimary

		if err := s.ensureVacant(ctx, tx, target); err != nil {
			return err
		}
		if target.IsBed() {
			bed, err := s.repo.FindBed(ctx, tx, caller.AccountID, target.BedID)
			if err != nil {
				return err
			}
			if bed == nil {
				return domain.ErrNotFound
			}
			bedID := bed.ID
			occ.UnitID = nil
			occ.BedID = &bedID
			occ.IsPrimary = false
			if req.Rent != nil {
				occ.Rent = *req.Rent
			}
		} else {
			unit, err := s.flatUnit(ctx, tx, caller.AccountID, target.UnitID, domain.ErrInvalidAssignmentTarget)
			if err != nil {
				return err
			}
			unitID := unit.ID
			occ.UnitID = &unitID
			occ.BedID = nil
			occ.IsPrimary = true
			occ.Rent = unit.ExpectedRent
			if req.Rent != nil {
				occ.Rent = *req.Rent
			}
		}
		occ.BuildingID = newBuildingID
		occ.UpdatedAt = now
		if err := s.update(ctx, tx, occ); err != nil {
			return err
		}

		if wasFlatPrimary {
			promoted, err = s.promoteCoOccupant(ctx, tx, caller.AccountID, oldTarget.UnitID, now)
			if err != nil {
				return err
			}
		}

		for _, t := range []domain.Target{oldTarget, target} {
			change, err := s.recomputeStatus(ctx, tx, caller.AccountID, t)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opReassign, target.Kind())
	fields := []zap.Field{
		zap.String("occupancy_id", id.String()),
		zap.String("from_kind", oldTarget.Kind()),
		zap.String("from_id", oldTarget.ID().String()),
		zap.String("to_kind", target.Kind()),
		zap.String("to_id", target.ID().String()),
		zap.Any("status_changes", changes),
	}
	if promoted != nil {
		fields = append(fields, zap.String("promoted_occupancy_id", promoted.String()))
	}
	s.log.Info("occupancy reassigned", fields...)

	view := viewOf(*occ, today)
	return &view, nil
}

func (s *Service) Vacate(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req domain.VacateRequest) (*domain.VacateResult, error) {
	buildingID, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id)
	if err != nil {
		return nil, err
	}
	current, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	target := current.Target()

	today := clock.Today(s.clock)
	now := s.clock.Now()

	var (
		occ      *domain.Occupancy
		warnings []domain.Blocker
		change   domain.StatusChange
		promoted *snowflake.ID
	)
	refs := []LockRef{{Kind: LockOccupancy, ID: id}, targetRef(target)}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		var err error
		occ, err = s.lockedActive(ctx, tx, caller.AccountID, id, target)
		if err != nil {
			return err
		}

		end := today
		if req.EndDate != nil {
			end = clock.DateOf(*req.EndDate)
		}
		if end.Before(clock.DateOf(occ.StartDate)) {
			return domain.ErrInvalidDate
		}

		blockers, err := s.checkoutBlockers(ctx, tx, *occ, today)
		if err != nil {
			return err
		}
		if len(blockers) > 0 {
			if !req.Force {
				return &domain.CheckoutBlockedError{Blockers: blockers}
			}
			warnings = blockers
			if err := s.auditForcedCheckout(ctx, tx, caller, buildingID, *occ, blockers, req.Reason); err != nil {
				return err
			}
		}

		wasFlatPrimary := !target.IsBed() && occ.IsPrimary
		occ.IsActive = false
		occ.EndDate = &end
		occ.UpdatedAt = now
		if err := s.update(ctx, tx, occ); err != nil {
			return err
		}

		if wasFlatPrimary {
			promoted, err = s.promoteCoOccupant(ctx, tx, caller.AccountID, target.UnitID, now)
			if err != nil {
				return err
			}
		}

		change, err = s.recomputeStatus(ctx, tx, caller.AccountID, target)
		return err
	})
	if err != nil {
		var blocked *domain.CheckoutBlockedError
		if errors.As(err, &blocked) {
			s.occMetrics.IncCheckoutBlocked(blocked.Codes()...)
		}
		return nil, s.mapTxErr(err)
	}

	op := opVacate
	if len(warnings) > 0 {
		op = opForceVacate
		s.occMetrics.IncForcedCheckout()
		s.log.Warn("forced checkout overrode blockers",
			zap.String("occupancy_id", id.String()),
			zap.String("member_id", caller.MemberID.String()),
			zap.Strings("blockers", blockerCodes(warnings)),
		)
	}
	s.recordTransition(ctx, caller, op, target.Kind())
	s.log.Info("occupancy vacated",
		zap.String("occupancy_id", id.String()),
		zap.String("status_from", change.From),
		zap.String("status_to", change.To),
	)

	if warnings == nil {
		warnings = []domain.Blocker{}
	}
	return &domain.VacateResult{
		Occupancy: viewOf(*occ, today),
		Warnings:  warnings,
		Changes:   []domain.StatusChange{change},
		Promoted:  promoted,
	}, nil
}

func (s *Service) SetPrimary(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.OccupancyView, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id); err != nil {
		return nil, err
	}
	current, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	target := current.Target()
	if target.IsBed() {
		return nil, domain.ErrNotFlat
	}

	today := clock.Today(s.clock)
	now := s.clock.Now()

	var chosen domain.Occupancy
	refs := []LockRef{{Kind: LockOccupancy, ID: id}, targetRef(target)}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		if _, err := s.lockedActive(ctx, tx, caller.AccountID, id, target); err != nil {
			return err
		}
		unit, err := s.flatUnit(ctx, tx, caller.AccountID, target.UnitID, domain.ErrNotFlat)
		if err != nil {
			return err
		}
		actives, err := s.repo.ListActiveOnUnit(ctx, tx, unit.ID)
		if err != nil {
			return err
		}

		// Demote first so a flat never has two active primaries.
		for _, o := range actives {
			if o.ID == id || (!o.IsPrimary && o.Rent == 0) {
				continue
			}
			if err := s.setRole(ctx, tx, o, false, 0, now); err != nil {
				return err
			}
		}
		for _, o := range actives {
			if o.ID != id {
				continue
			}
			if err := s.setRole(ctx, tx, o, true, unit.ExpectedRent, now); err != nil {
				return err
			}
		}
		updated, err := s.find(ctx, tx, caller.AccountID, id)
		if err != nil {
			return err
		}
		chosen = *updated
		return nil
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opSetPrimary, target.Kind())
	s.log.Info("primary occupant changed",
		zap.String("occupancy_id", id.String()),
		zap.String("unit_id", target.UnitID.String()),
	)

	view := viewOf(chosen, today)
	return &view, nil
}

func (s *Service) AddCoOccupant(ctx context.Context, caller accountdomain.Caller, unitID snowflake.ID, req domain.AddCoOccupantRequest) (*domain.OccupancyView, error) {
	if err := validateAmounts(nil, req.Deposit); err != nil {
		return nil, err
	}
	buildingID, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindUnit, unitID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.findTenant(ctx, caller.AccountID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotEdited(ctx, caller, softlock.KindUnit, unitID); err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	start := today
	if req.StartDate != nil {
		start = clock.DateOf(*req.StartDate)
	}
	now := s.clock.Now()
	target := domain.Target{UnitID: unitID}

	occ := domain.Occupancy{
		ID:         s.genID.Generate(),
		AccountID:  caller.AccountID,
		BuildingID: buildingID,
		TenantID:   tenant.ID,
		UnitID:     &unitID,
		IsActive:   true,
		StartDate:  start,
		Notes:      strings.TrimSpace(req.Notes),
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Deposit != nil {
		occ.Deposit = *req.Deposit
	}

	var change domain.StatusChange
	refs := []LockRef{targetRef(target), {Kind: LockTenant, ID: tenant.ID}}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		unit, err := s.flatUnit(ctx, tx, caller.AccountID, unitID, domain.ErrNotFlat)
		if err != nil {
			return err
		}
		if err := s.ensureTenantFree(ctx, tx, caller.AccountID, tenant.ID); err != nil {
			return err
		}
		actives, err := s.repo.ListActiveOnUnit(ctx, tx, unit.ID)
		if err != nil {
			return err
		}
		if !hasPrimary(actives) {
			occ.IsPrimary = true
			occ.Rent = unit.ExpectedRent
		}

		if err := s.insert(ctx, tx, &occ); err != nil {
			return err
		}
		change, err = s.recomputeStatus(ctx, tx, caller.AccountID, target)
		return err
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opAddCoOccupant, target.Kind())
	s.log.Info("co-occupant added",
		zap.String("occupancy_id", occ.ID.String()),
		zap.String("unit_id", unitID.String()),
		zap.Bool("is_primary", occ.IsPrimary),
		zap.String("status_to", change.To),
	)

	view := viewOf(occ, today)
	return &view, nil
}

func (s *Service) GiveNotice(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req domain.GiveNoticeRequest) (*domain.OccupancyView, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id); err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	now := s.clock.Now()
	noticeDate := today
	if req.NoticeDate != nil {
		noticeDate = clock.DateOf(*req.NoticeDate)
	}

	current, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return nil, domain.ErrAlreadyInactive
	}
	target := current.Target()

	var occ *domain.Occupancy
	refs := []LockRef{{Kind: LockOccupancy, ID: id}, targetRef(target)}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		var err error
		occ, err = s.lockedActive(ctx, tx, caller.AccountID, id, target)
		if err != nil {
			return err
		}
		if occ.NoticeDate != nil {
			return domain.ErrNoticeAlreadyGiven
		}
		if noticeDate.Before(clock.DateOf(occ.StartDate)) {
			return domain.ErrInvalidDate
		}

		days, err := s.repo.BuildingNoticePeriod(ctx, tx, caller.AccountID, occ.BuildingID)
		if err != nil {
			return err
		}
		days = config.ClampNoticePeriodDays(days)
		expected := noticeDate.AddDate(0, 0, days)

		occ.NoticeDate = &noticeDate
		occ.ExpectedCheckoutDate = &expected
		occ.NoticePeriodDays = days
		occ.NoticeReason = strings.TrimSpace(req.Reason)
		occ.UpdatedAt = now
		return s.update(ctx, tx, occ)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opGiveNotice, occ.Target().Kind())
	s.log.Info("notice given",
		zap.String("occupancy_id", id.String()),
		zap.Time("notice_date", noticeDate),
		zap.Int("notice_period_days", occ.NoticePeriodDays),
	)

	view := viewOf(*occ, today)
	return &view, nil
}

func (s *Service) CancelNotice(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.OccupancyView, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id); err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	now := s.clock.Now()

	current, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return nil, domain.ErrAlreadyInactive
	}
	target := current.Target()

	var occ *domain.Occupancy
	refs := []LockRef{{Kind: LockOccupancy, ID: id}, targetRef(target)}
	err = s.transact(ctx, caller.AccountID, refs, func(tx *gorm.DB) error {
		var err error
		occ, err = s.lockedActive(ctx, tx, caller.AccountID, id, target)
		if err != nil {
			return err
		}
		if occ.NoticeDate == nil {
			return domain.ErrNoNotice
		}
		occ.NoticeDate = nil
		occ.ExpectedCheckoutDate = nil
		occ.NoticePeriodDays = 0
		occ.NoticeReason = ""
		occ.UpdatedAt = now
		return s.update(ctx, tx, occ)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}

	s.recordTransition(ctx, caller, opCancelNotice, occ.Target().Kind())
	s.log.Info("notice cancelled", zap.String("occupancy_id", id.String()))

	view := viewOf(*occ, today)
	return &view, nil
}

func (s *Service) Get(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.OccupancyView, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindOccupancy, id); err != nil {
		return nil, err
	}
	occ, err := s.find(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	view := viewOf(*occ, clock.Today(s.clock))
	return &view, nil
}

func (s *Service) List(ctx context.Context, caller accountdomain.Caller, filter domain.ListFilter) ([]domain.OccupancyView, error) {
	if filter.NoticeState != "" {
		if _, ok := domain.ParseNoticeState(string(filter.NoticeState)); !ok {
			return nil, domain.ErrInvalidNoticeState
		}
	}

	var buildingIDs []snowflake.ID
	if filter.BuildingID != 0 {
		if err := s.accessSvc.Authorize(ctx, caller, filter.BuildingID); err != nil {
			return nil, err
		}
		buildingIDs = []snowflake.ID{filter.BuildingID}
	} else {
		ids, err := s.accessSvc.AccessibleBuildings(ctx, caller)
		if err != nil {
			return nil, err
		}
		buildingIDs = ids
	}

	items, err := s.repo.List(ctx, s.db, caller.AccountID, domain.QueryFilter{
		BuildingIDs: buildingIDs,
		TenantID:    filter.TenantID,
		Active:      filter.Active,
	})
	if err != nil {
		return nil, err
	}

	today := clock.Today(s.clock)
	views := make([]domain.OccupancyView, 0, len(items))
	for _, item := range items {
		view := viewOf(item, today)
		if filter.NoticeState != "" && view.NoticeState != filter.NoticeState {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) SweepNotices(ctx context.Context) ([]domain.NoticeSummary, []domain.OccupancyView, error) {
	items, err := s.repo.ListActiveWithNotice(ctx, s.db)
	if err != nil {
		return nil, nil, err
	}

	today := clock.Today(s.clock)
	summaries := []domain.NoticeSummary{}
	overdue := []domain.OccupancyView{}
	for _, item := range items {
		if len(summaries) == 0 || summaries[len(summaries)-1].AccountID != item.AccountID {
			summaries = append(summaries, domain.NoticeSummary{AccountID: item.AccountID})
		}
		summary := &summaries[len(summaries)-1]

		view := viewOf(item, today)
		switch view.NoticeState {
		case domain.NoticeRunning:
			summary.Running++
		case domain.NoticeEligible:
			summary.Eligible++
		}
		if view.Overdue {
			summary.Overdue++
			overdue = append(overdue, view)
		}
	}
	return summaries, overdue, nil
}

func (s *Service) transact(ctx context.Context, accountID snowflake.ID, refs []LockRef, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithAccount(tx, int64(accountID)); err != nil {
			return err
		}
		return s.locker.WithLock(ctx, tx, refs, fn)
	})
}

func (s *Service) mapTxErr(err error) error {
	if pkgdb.IsRetryableConflict(err) {
		s.occMetrics.IncConflict(metrics.ConflictLockWait)
		return domain.ErrLockTimeout
	}
	return err
}

func (s *Service) find(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Occupancy, error) {
	occ, err := s.repo.Find(ctx, db, accountID, id)
	if err != nil {
		return nil, err
	}
	if occ == nil {
		return nil, domain.ErrNotFound
	}
	return occ, nil
}

// lockedActive re-reads an occupancy after its row lock is held. A target
// that moved since the pre-read means the wrong resource was locked.
func (s *Service) lockedActive(ctx context.Context, tx *gorm.DB, accountID, id snowflake.ID, lockedTarget domain.Target) (*domain.Occupancy, error) {
	occ, err := s.find(ctx, tx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !occ.IsActive {
		return nil, domain.ErrAlreadyInactive
	}
	if !occ.Target().Equal(lockedTarget) {
		return nil, domain.ErrLockTimeout
	}
	return occ, nil
}

func (s *Service) findTenant(ctx context.Context, accountID, tenantID snowflake.ID) (*domain.TenantRef, error) {
	if tenantID == 0 {
		return nil, domain.ErrTenantNotFound
	}
	tenant, err := s.repo.FindTenant(ctx, s.db, accountID, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *Service) flatUnit(ctx context.Context, tx *gorm.DB, accountID, unitID snowflake.ID, notFlat error) (*domain.UnitRef, error) {
	unit, err := s.repo.FindUnit(ctx, tx, accountID, unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrNotFound
	}
	if unit.UnitType != string(inventorydomain.UnitTypeFlat) {
		return nil, notFlat
	}
	return unit, nil
}

func (s *Service) ensureTenantFree(ctx context.Context, tx *gorm.DB, accountID, tenantID snowflake.ID) error {
	placed, err := s.repo.FindActiveByTenant(ctx, tx, accountID, tenantID)
	if err != nil {
		return err
	}
	if placed != nil {
		s.occMetrics.IncConflict(metrics.ConflictTenantBusy)
		return domain.ErrTenantAlreadyPlaced
	}
	return nil
}

func (s *Service) ensureVacant(ctx context.Context, tx *gorm.DB, target domain.Target) error {
	active, err := s.repo.CountActive(ctx, tx, target)
	if err != nil {
		return err
	}
	if active > 0 {
		s.occMetrics.IncConflict(metrics.ConflictOccupied)
		return domain.ErrResourceAlreadyOccupied
	}
	return nil
}

func (s *Service) ensureNotEdited(ctx context.Context, caller accountdomain.Caller, kind softlock.Kind, id snowflake.ID) error {
	if s.softlock == nil {
		return nil
	}
	if err := s.softlock.EnsureNotHeldByOther(ctx, caller.MemberID, kind, id); err != nil {
		s.occMetrics.IncConflict(metrics.ConflictSoftLocked)
		return err
	}
	return nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, occ *domain.Occupancy) error {
	if err := s.repo.Insert(ctx, tx, occ); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			s.occMetrics.IncConflict(metrics.ConflictOccupied)
			return domain.ErrResourceAlreadyOccupied
		}
		return err
	}
	return nil
}

func (s *Service) update(ctx context.Context, tx *gorm.DB, occ *domain.Occupancy) error {
	if err := s.repo.Update(ctx, tx, occ); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			s.occMetrics.IncConflict(metrics.ConflictOccupied)
			return domain.ErrResourceAlreadyOccupied
		}
		return err
	}
	return nil
}

// setRole changes whether a flat occupant is primary without rewriting the
// rest of its row.
func (s *Service) setRole(ctx context.Context, tx *gorm.DB, o domain.Occupancy, primary bool, rent int64, now time.Time) error {
	if err := s.repo.SetRole(ctx, tx, o.AccountID, o.ID, primary, rent, now); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			s.occMetrics.IncConflict(metrics.ConflictOccupied)
			return domain.ErrResourceAlreadyOccupied
		}
		return err
	}
	return nil
}

// promoteCoOccupant makes the earliest remaining occupant of a flat its
// primary when none is left.
func (s *Service) promoteCoOccupant(ctx context.Context, tx *gorm.DB, accountID, unitID snowflake.ID, now time.Time) (*snowflake.ID, error) {
	actives, err := s.repo.ListActiveOnUnit(ctx, tx, unitID)
	if err != nil {
		return nil, err
	}
	if len(actives) == 0 || hasPrimary(actives) {
		return nil, nil
	}
	unit, err := s.repo.FindUnit(ctx, tx, accountID, unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrNotFound
	}

	next := actives[0]
	if err := s.setRole(ctx, tx, next, true, unit.ExpectedRent, now); err != nil {
		return nil, err
	}
	return &next.ID, nil
}

func (s *Service) checkoutBlockers(ctx context.Context, tx *gorm.DB, occ domain.Occupancy, today time.Time) ([]domain.Blocker, error) {
	blockers := []domain.Blocker{}

	pending, err := s.repo.CountPendingRent(ctx, tx, occ.ID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		blockers = append(blockers, domain.Blocker{
			Code:    domain.BlockerPendingRent,
			Message: fmt.Sprintf("%d rent entries are not fully paid", pending),
		})
	}

	unitID := occ.Target().UnitID
	if occ.BedID != nil {
		bed, err := s.repo.FindBed(ctx, tx, occ.AccountID, *occ.BedID)
		if err != nil {
			return nil, err
		}
		if bed != nil {
			unitID = bed.UnitID
		}
	}
	if unitID != 0 {
		open, err := s.repo.CountOpenIssues(ctx, tx, unitID, occ.TenantID)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			blockers = append(blockers, domain.Blocker{
				Code:    domain.BlockerOpenIssues,
				Message: fmt.Sprintf("%d issues raised by the tenant are still open", open),
			})
		}
	}

	switch view := viewOf(occ, today); view.NoticeState {
	case domain.NoticeNone:
		blockers = append(blockers, domain.Blocker{
			Code:    domain.BlockerNoticeNotGiven,
			Message: "notice has not been given",
		})
	case domain.NoticeRunning:
		blockers = append(blockers, domain.Blocker{
			Code:    domain.BlockerNoticePeriodRunning,
			Message: fmt.Sprintf("notice period ends in %d days", view.DaysRemaining),
		})
	}
	return blockers, nil
}

func (s *Service) auditForcedCheckout(ctx context.Context, tx *gorm.DB, caller accountdomain.Caller, buildingID snowflake.ID, occ domain.Occupancy, blockers []domain.Blocker, reason string) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		AccountID:  caller.AccountID,
		BuildingID: buildingID,
		ActorType:  string(auditdomain.ActorTypeMember),
		ActorID:    caller.MemberID.String(),
		Action:     auditActionForceCheckout,
		TargetType: "occupancy",
		TargetID:   occ.ID.String(),
		Metadata: map[string]any{
			"tenant_id": occ.TenantID.String(),
			"blockers":  blockerCodes(blockers),
			"reason":    strings.TrimSpace(reason),
		},
	})
}

func (s *Service) recordTransition(ctx context.Context, caller accountdomain.Caller, op, kind string) {
	s.occMetrics.IncTransition(op)
	s.metrics.RecordOccupancyEvent(ctx, caller.AccountID.String(), op, kind)
}

func validateAmounts(rent, deposit *int64) error {
	if rent != nil && *rent < 0 {
		return domain.ErrInvalidRent
	}
	if deposit != nil && *deposit < 0 {
		return domain.ErrInvalidDeposit
	}
	return nil
}

func hasPrimary(items []domain.Occupancy) bool {
	for _, item := range items {
		if item.IsPrimary {
			return true
		}
	}
	return false
}

func blockerCodes(blockers []domain.Blocker) []string {
	codes := make([]string, 0, len(blockers))
	for _, b := range blockers {
		codes = append(codes, b.Code)
	}
	return codes
}

func metadataOf(raw map[string]any) datatypes.JSONMap {
	if raw == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(raw)
}

func accessKind(t domain.Target) accessdomain.ResourceKind {
	if t.IsBed() {
		return accessdomain.KindBed
	}
	return accessdomain.KindUnit
}

func editingKind(t domain.Target) softlock.Kind {
	if t.IsBed() {
		return softlock.KindBed
	}
	return softlock.KindUnit
}
