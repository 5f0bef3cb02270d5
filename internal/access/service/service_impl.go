package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("access.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) AccessibleBuildings(ctx context.Context, caller accountdomain.Caller) ([]snowflake.ID, error) {
	if caller.AccountID == 0 {
		return []snowflake.ID{}, nil
	}
	switch caller.Role {
	case accountdomain.RoleOwner:
		return s.repo.AccountBuildingIDs(ctx, s.db, caller.AccountID)
	case accountdomain.RoleManager:
		if caller.MemberID == 0 {
			return []snowflake.ID{}, nil
		}
		return s.repo.GrantedBuildingIDs(ctx, s.db, caller.AccountID, caller.MemberID)
	default:
		return []snowflake.ID{}, nil
	}
}

func (s *Service) CanAccess(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) (bool, error) {
	if caller.AccountID == 0 || buildingID == 0 {
		return false, nil
	}

	owner, err := s.repo.OwnerOf(ctx, s.db, domain.KindBuilding, buildingID)
	if err != nil {
		return false, err
	}
	if owner == nil || owner.AccountID != caller.AccountID {
		return false, nil
	}

	switch caller.Role {
	case accountdomain.RoleOwner:
		return true, nil
	case accountdomain.RoleManager:
		if caller.MemberID == 0 {
			return false, nil
		}
		return s.repo.HasGrant(ctx, s.db, caller.AccountID, caller.MemberID, buildingID)
	default:
		return false, nil
	}
}

func (s *Service) AccessibleResourceIDs(ctx context.Context, caller accountdomain.Caller, kind domain.ResourceKind) ([]snowflake.ID, error) {
	if _, ok := domain.ParseResourceKind(string(kind)); !ok {
		return nil, domain.ErrInvalidKind
	}
	buildings, err := s.AccessibleBuildings(ctx, caller)
	if err != nil {
		return nil, err
	}
	if kind == domain.KindBuilding {
		return buildings, nil
	}
	return s.repo.ResourceIDs(ctx, s.db, caller.AccountID, kind, buildings)
}

func (s *Service) Authorize(ctx context.Context, caller accountdomain.Caller, buildingID snowflake.ID) error {
	allowed, err := s.CanAccess(ctx, caller, buildingID)
	if err != nil {
		// A failed lookup never grants access.
		s.log.Warn("access check failed",
			zap.String("building_id", buildingID.String()),
			zap.Error(err),
		)
		s.metrics.RecordAccessDecision(ctx, string(caller.Role), false)
		return domain.ErrPermissionDenied
	}
	s.metrics.RecordAccessDecision(ctx, string(caller.Role), allowed)
	if !allowed {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *Service) BuildingOf(ctx context.Context, kind domain.ResourceKind, id snowflake.ID) (snowflake.ID, snowflake.ID, error) {
	if _, ok := domain.ParseResourceKind(string(kind)); !ok {
		return 0, 0, domain.ErrInvalidKind
	}
	if id == 0 {
		return 0, 0, domain.ErrPermissionDenied
	}
	owner, err := s.repo.OwnerOf(ctx, s.db, kind, id)
	if err != nil {
		return 0, 0, err
	}
	if owner == nil {
		return 0, 0, domain.ErrPermissionDenied
	}
	return owner.AccountID, owner.BuildingID, nil
}

func (s *Service) AuthorizeResource(ctx context.Context, caller accountdomain.Caller, kind domain.ResourceKind, id snowflake.ID) (snowflake.ID, error) {
	accountID, buildingID, err := s.BuildingOf(ctx, kind, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidKind) {
			return 0, err
		}
		return 0, domain.ErrPermissionDenied
	}
	if accountID != caller.AccountID {
		return 0, domain.ErrPermissionDenied
	}
	if err := s.Authorize(ctx, caller, buildingID); err != nil {
		return 0, err
	}
	return buildingID, nil
}

func (s *Service) GrantBuildingAccess(ctx context.Context, caller accountdomain.Caller, managerID, buildingID snowflake.ID) (*domain.Grant, error) {
	if !caller.IsOwner() {
		return nil, domain.ErrPermissionDenied
	}
	if managerID == 0 {
		return nil, domain.ErrInvalidGrantee
	}
	if buildingID == 0 {
		return nil, domain.ErrInvalidBuildingID
	}

	var grant *domain.Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkGrantTargets(ctx, tx, caller, managerID, buildingID); err != nil {
			return err
		}

		grant = &domain.Grant{
			ID:         s.genID.Generate(),
			AccountID:  caller.AccountID,
			ManagerID:  managerID,
			BuildingID: buildingID,
			GrantedBy:  caller.MemberID,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.repo.InsertGrant(ctx, tx, grant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrGrantExists
			}
			return err
		}

		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			AccountID:  caller.AccountID,
			BuildingID: buildingID,
			ActorType:  string(auditdomain.ActorTypeMember),
			ActorID:    caller.MemberID.String(),
			Action:     "access.grant",
			TargetType: "member",
			TargetID:   managerID.String(),
			Metadata: map[string]any{
				"grant_id":    grant.ID.String(),
				"building_id": buildingID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("building access granted",
		zap.String("account_id", caller.AccountID.String()),
		zap.String("manager_id", managerID.String()),
		zap.String("building_id", buildingID.String()),
	)
	return grant, nil
}

func (s *Service) RevokeBuildingAccess(ctx context.Context, caller accountdomain.Caller, managerID, buildingID snowflake.ID) error {
	if !caller.IsOwner() {
		return domain.ErrPermissionDenied
	}
	if managerID == 0 {
		return domain.ErrInvalidGrantee
	}
	if buildingID == 0 {
		return domain.ErrInvalidBuildingID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.DeleteGrant(ctx, tx, caller.AccountID, managerID, buildingID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			AccountID:  caller.AccountID,
			BuildingID: buildingID,
			ActorType:  string(auditdomain.ActorTypeMember),
			ActorID:    caller.MemberID.String(),
			Action:     "access.revoke",
			TargetType: "member",
			TargetID:   managerID.String(),
			Metadata: map[string]any{
				"building_id": buildingID.String(),
			},
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("building access revoked",
		zap.String("account_id", caller.AccountID.String()),
		zap.String("manager_id", managerID.String()),
		zap.String("building_id", buildingID.String()),
	)
	return nil
}

func (s *Service) ListGrants(ctx context.Context, caller accountdomain.Caller, filter domain.GrantFilter) ([]domain.Grant, error) {
	if !caller.IsOwner() {
		return nil, domain.ErrPermissionDenied
	}
	grants, err := s.repo.ListGrants(ctx, s.db, caller.AccountID, filter)
	if err != nil {
		return nil, err
	}
	if grants == nil {
		return []domain.Grant{}, nil
	}
	return grants, nil
}

func (s *Service) checkGrantTargets(ctx context.Context, tx *gorm.DB, caller accountdomain.Caller, managerID, buildingID snowflake.ID) error {
	member, err := s.repo.FindMember(ctx, tx, managerID)
	if err != nil {
		return err
	}
	if member == nil {
		return domain.ErrInvalidGrantee
	}
	if member.AccountID != caller.AccountID {
		s.log.Warn("cross-account grant rejected",
			zap.String("account_id", caller.AccountID.String()),
			zap.String("manager_id", managerID.String()),
		)
		return domain.ErrPermissionDenied
	}
	switch accountdomain.Role(member.Role) {
	case accountdomain.RoleOwner:
		return domain.ErrGranteeIsOwner
	case accountdomain.RoleManager:
	default:
		return domain.ErrInvalidGrantee
	}

	owner, err := s.repo.OwnerOf(ctx, tx, domain.KindBuilding, buildingID)
	if err != nil {
		return err
	}
	if owner == nil || owner.AccountID != caller.AccountID {
		return domain.ErrPermissionDenied
	}
	return nil
}
