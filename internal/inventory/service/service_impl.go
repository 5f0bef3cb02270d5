package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/inventory/domain"
	"github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	AccessSvc accessdomain.Service
	Policy    *config.PolicyHolder `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	accessSvc accessdomain.Service
	policy    *config.PolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("inventory.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		accessSvc: p.AccessSvc,
		policy:    p.Policy,
	}
}

func (s *Service) CreateBuilding(ctx context.Context, caller accountdomain.Caller, req domain.CreateBuildingRequest) (*domain.Building, error) {
	if !caller.IsOwner() {
		return nil, accessdomain.ErrPermissionDenied
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	floors := req.TotalFloors
	if floors == 0 {
		floors = 1
	}
	if floors < 0 {
		return nil, domain.ErrInvalidFloors
	}
	days := s.policy.Get().DefaultNoticePeriodDays
	if req.NoticePeriodDays != nil {
		if *req.NoticePeriodDays < config.MinNoticePeriodDays || *req.NoticePeriodDays > config.MaxNoticePeriodDays {
			return nil, domain.ErrInvalidNoticePeriod
		}
		days = *req.NoticePeriodDays
	}

	now := s.clock.Now()
	building := &domain.Building{
		ID:               s.genID.Generate(),
		AccountID:        caller.AccountID,
		Name:             name,
		Slug:             slug.Make(name),
		Address:          strings.TrimSpace(req.Address),
		TotalFloors:      floors,
		NoticePeriodDays: days,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertBuilding(ctx, s.db, building); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrBuildingExists
		}
		return nil, err
	}

	s.log.Info("building created",
		zap.String("account_id", caller.AccountID.String()),
		zap.String("building_id", building.ID.String()),
	)
	return building, nil
}

func (s *Service) ListBuildings(ctx context.Context, caller accountdomain.Caller) ([]domain.BuildingView, error) {
	ids, err := s.accessSvc.AccessibleBuildings(ctx, caller)
	if err != nil {
		return nil, err
	}
	buildings, err := s.repo.ListBuildings(ctx, s.db, caller.AccountID, ids)
	if err != nil {
		return nil, err
	}
	return s.withCounts(ctx, caller.AccountID, buildings)
}

func (s *Service) GetBuilding(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.BuildingView, error) {
	building, err := s.authorizedBuilding(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	views, err := s.withCounts(ctx, caller.AccountID, []domain.Building{*building})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// UpdateNoticePeriod only affects notices given after the change; notices
// already given carry their own captured period.
func (s *Service) UpdateNoticePeriod(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, days int) (*domain.Building, error) {
	building, err := s.authorizedBuilding(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	clamped := config.ClampNoticePeriodDays(days)
	now := s.clock.Now()
	if err := s.repo.UpdateNoticePeriod(ctx, s.db, caller.AccountID, id, clamped, now); err != nil {
		return nil, err
	}

	s.log.Info("notice period updated",
		zap.String("building_id", id.String()),
		zap.Int("from", building.NoticePeriodDays),
		zap.Int("to", clamped),
	)
	building.NoticePeriodDays = clamped
	building.UpdatedAt = now
	return building, nil
}

func (s *Service) CreateUnit(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID, req domain.CreateUnitRequest) (*domain.Unit, error) {
	if _, err := s.authorizedBuilding(ctx, caller, buildingID); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.UnitNumber)
	if number == "" {
		return nil, domain.ErrInvalidUnitNumber
	}
	unitType := domain.UnitType(strings.ToUpper(strings.TrimSpace(string(req.UnitType))))
	if !unitType.Valid() {
		return nil, domain.ErrInvalidUnitType
	}
	if req.ExpectedRent < 0 || req.Deposit < 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	unit := &domain.Unit{
		ID:           s.genID.Generate(),
		AccountID:    caller.AccountID,
		BuildingID:   buildingID,
		UnitNumber:   number,
		UnitType:     unitType,
		BHKType:      strings.TrimSpace(req.BHKType),
		ExpectedRent: req.ExpectedRent,
		Deposit:      req.Deposit,
		Status:       domain.StatusVacant,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUnit(ctx, s.db, unit); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUnitExists
		}
		return nil, err
	}
	return unit, nil
}

func (s *Service) ListUnits(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) ([]domain.Unit, error) {
	if _, err := s.authorizedBuilding(ctx, caller, buildingID); err != nil {
		return nil, err
	}
	units, err := s.repo.ListUnits(ctx, s.db, caller.AccountID, buildingID)
	if err != nil {
		return nil, err
	}
	if units == nil {
		return []domain.Unit{}, nil
	}
	return units, nil
}

func (s *Service) CreateRoom(ctx context.Context, caller accountdomain.Caller, unitID snowflake.ID, req domain.CreateRoomRequest) (*domain.PGRoom, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindUnit, unitID); err != nil {
		return nil, err
	}
	unit, err := s.repo.FindUnit(ctx, s.db, caller.AccountID, unitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, accessdomain.ErrPermissionDenied
	}
	if unit.UnitType != domain.UnitTypePG {
		return nil, domain.ErrUnitNotPG
	}
	number := strings.TrimSpace(req.RoomNumber)
	if number == "" {
		return nil, domain.ErrInvalidRoomNumber
	}
	if req.SharingCount < 1 {
		return nil, domain.ErrInvalidSharingCount
	}

	room := &domain.PGRoom{
		ID:           s.genID.Generate(),
		AccountID:    caller.AccountID,
		UnitID:       unitID,
		RoomNumber:   number,
		SharingCount: req.SharingCount,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertRoom(ctx, s.db, room); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrRoomExists
		}
		return nil, err
	}
	return room, nil
}

func (s *Service) CreateBed(ctx context.Context, caller accountdomain.Caller, roomID snowflake.ID, req domain.CreateBedRequest) (*domain.Bed, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindPGRoom, roomID); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.BedNumber)
	if number == "" {
		return nil, domain.ErrInvalidBedNumber
	}

	var bed *domain.Bed
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := s.repo.FindRoom(ctx, tx, caller.AccountID, roomID)
		if err != nil {
			return err
		}
		if room == nil {
			return accessdomain.ErrPermissionDenied
		}
		count, err := s.repo.CountBeds(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if count >= int64(room.SharingCount) {
			return domain.ErrRoomFull
		}

		bed = &domain.Bed{
			ID:        s.genID.Generate(),
			AccountID: caller.AccountID,
			RoomID:    roomID,
			BedNumber: number,
			Status:    domain.StatusVacant,
			CreatedAt: s.clock.Now(),
		}
		if err := s.repo.InsertBed(ctx, tx, bed); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrBedExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bed, nil
}

func (s *Service) ListBeds(ctx context.Context, caller accountdomain.Caller, roomID snowflake.ID) ([]domain.Bed, error) {
	if _, err := s.accessSvc.AuthorizeResource(ctx, caller, accessdomain.KindPGRoom, roomID); err != nil {
		return nil, err
	}
	beds, err := s.repo.ListBeds(ctx, s.db, caller.AccountID, roomID)
	if err != nil {
		return nil, err
	}
	if beds == nil {
		return []domain.Bed{}, nil
	}
	return beds, nil
}

func (s *Service) authorizedBuilding(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.Building, error) {
	if err := s.accessSvc.Authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	building, err := s.repo.FindBuilding(ctx, s.db, caller.AccountID, id)
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, accessdomain.ErrPermissionDenied
	}
	return building, nil
}

func (s *Service) withCounts(ctx context.Context, accountID snowflake.ID, buildings []domain.Building) ([]domain.BuildingView, error) {
	ids := make([]snowflake.ID, 0, len(buildings))
	for _, b := range buildings {
		ids = append(ids, b.ID)
	}
	counts, err := s.repo.UnitCounts(ctx, s.db, accountID, ids)
	if err != nil {
		return nil, err
	}
	byBuilding := make(map[snowflake.ID]domain.UnitCounts, len(counts))
	for _, c := range counts {
		byBuilding[c.BuildingID] = c
	}

	views := make([]domain.BuildingView, 0, len(buildings))
	for _, b := range buildings {
		c := byBuilding[b.ID]
		views = append(views, domain.BuildingView{
			Building:      b,
			TotalUnits:    c.Total,
			OccupiedUnits: c.Occupied,
			VacantUnits:   c.Total - c.Occupied,
		})
	}
	return views, nil
}
