package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAccess         = "access"
	ObjectGrant          = "grant"
	ObjectMember         = "member"
	ObjectBuilding       = "building"
	ObjectUnit           = "unit"
	ObjectRoom           = "pg_room"
	ObjectBed            = "bed"
	ObjectTenant         = "tenant"
	ObjectOccupancy      = "occupancy"
	ObjectEditingSession = "editing_session"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionAccessView = "access.view"

	ActionGrantView   = "grant.view"
	ActionGrantCreate = "grant.create"
	ActionGrantRevoke = "grant.revoke"

	ActionMemberView        = "member.view"
	ActionMemberCreate      = "member.create"
	ActionMemberIssueAPIKey = "member.issue_api_key"
	ActionMemberOwnAPIKey   = "member.own_api_key"

	ActionBuildingView               = "building.view"
	ActionBuildingCreate             = "building.create"
	ActionBuildingUpdateNoticePeriod = "building.update_notice_period"

	ActionUnitView   = "unit.view"
	ActionUnitCreate = "unit.create"
	ActionRoomCreate = "pg_room.create"
	ActionBedCreate  = "bed.create"

	ActionTenantView   = "tenant.view"
	ActionTenantCreate = "tenant.create"

	ActionOccupancyView        = "occupancy.view"
	ActionOccupancyCreate      = "occupancy.create"
	ActionOccupancyReassign    = "occupancy.reassign"
	ActionOccupancyVacate      = "occupancy.vacate"
	ActionOccupancyForceVacate = "occupancy.force_vacate"
	ActionOccupancyNotice      = "occupancy.notice"
	ActionOccupancyPrimary     = "occupancy.primary"
	ActionOccupancyAddOccupant = "occupancy.add_occupant"
	ActionOccupancyStatement   = "occupancy.statement"

	ActionEditingSessionManage = "editing_session.manage"

	ActionAuditLogView = "audit_log.view"
)

const (
	roleOwner   = "role:owner"
	roleManager = "role:manager"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, caller accountdomain.Caller, object string, action string) error {
	if caller.MemberID == 0 {
		return ErrInvalidActor
	}
	if caller.AccountID == 0 {
		return ErrInvalidAccount
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, ok := roleFor(caller.Role)
	if !ok {
		s.auditDenied(ctx, caller, object, action)
		return ErrForbidden
	}

	subject := fmt.Sprintf("member:%s", caller.MemberID.String())
	domain := fmt.Sprintf("account:%s", caller.AccountID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, caller, object, action)
		return ErrForbidden
	}
	return nil
}

func roleFor(role accountdomain.Role) (string, bool) {
	switch role {
	case accountdomain.RoleOwner:
		return roleOwner, true
	case accountdomain.RoleManager:
		return roleManager, true
	default:
		return "", false
	}
}

// ensureGrouping keeps exactly one role link for subject in domain, so a
// role change on the member row takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, caller accountdomain.Caller, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("account_id", caller.AccountID.String()),
		zap.String("member_id", caller.MemberID.String()),
		zap.String("role", string(caller.Role)),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		AccountID:  caller.AccountID,
		ActorType:  string(auditdomain.ActorTypeMember),
		ActorID:    caller.MemberID.String(),
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   "capability",
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"role":   string(caller.Role),
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	shared := [][]string{
		{ObjectAccess, ActionAccessView},
		{ObjectMember, ActionMemberView},
		{ObjectMember, ActionMemberOwnAPIKey},
		{ObjectBuilding, ActionBuildingView},
		{ObjectBuilding, ActionBuildingUpdateNoticePeriod},
		{ObjectUnit, ActionUnitView},
		{ObjectUnit, ActionUnitCreate},
		{ObjectRoom, ActionRoomCreate},
		{ObjectBed, ActionBedCreate},
		{ObjectTenant, ActionTenantView},
		{ObjectTenant, ActionTenantCreate},
		{ObjectOccupancy, ActionOccupancyView},
		{ObjectOccupancy, ActionOccupancyCreate},
		{ObjectOccupancy, ActionOccupancyReassign},
		{ObjectOccupancy, ActionOccupancyVacate},
		{ObjectOccupancy, ActionOccupancyForceVacate},
		{ObjectOccupancy, ActionOccupancyNotice},
		{ObjectOccupancy, ActionOccupancyPrimary},
		{ObjectOccupancy, ActionOccupancyAddOccupant},
		{ObjectOccupancy, ActionOccupancyStatement},
		{ObjectEditingSession, ActionEditingSessionManage},
	}
	ownerOnly := [][]string{
		{ObjectGrant, ActionGrantView},
		{ObjectGrant, ActionGrantCreate},
		{ObjectGrant, ActionGrantRevoke},
		{ObjectMember, ActionMemberCreate},
		{ObjectMember, ActionMemberIssueAPIKey},
		{ObjectBuilding, ActionBuildingCreate},
		{ObjectAuditLog, ActionAuditLogView},
	}

	policies := make([][]string, 0, 2*len(shared)+len(ownerOnly))
	for _, rule := range shared {
		policies = append(policies, []string{roleOwner, rule[0], rule[1]})
		policies = append(policies, []string{roleManager, rule[0], rule[1]})
	}
	for _, rule := range ownerOnly {
		policies = append(policies, []string{roleOwner, rule[0], rule[1]})
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
