package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accessrepository "github.com/smallbiznis/kiraya/internal/access/repository"
	accessservice "github.com/smallbiznis/kiraya/internal/access/service"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	auditrepository "github.com/smallbiznis/kiraya/internal/audit/repository"
	auditservice "github.com/smallbiznis/kiraya/internal/audit/service"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/occupancy/repository"
	"github.com/smallbiznis/kiraya/internal/softlock"
	tenantdomain "github.com/smallbiznis/kiraya/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	owner   = accountdomain.Caller{AccountID: 1, MemberID: 11, Role: accountdomain.RoleOwner}
	manager = accountdomain.Caller{AccountID: 1, MemberID: 12, Role: accountdomain.RoleManager}
	outside = accountdomain.Caller{AccountID: 2, MemberID: 21, Role: accountdomain.RoleOwner}
)

const (
	buildingA = snowflake.ID(100)
	buildingB = snowflake.ID(200)

	flatA     = snowflake.ID(1000)
	flatB     = snowflake.ID(1001)
	pgUnit    = snowflake.ID(1100)
	foreignFl = snowflake.ID(2000)

	roomA = snowflake.ID(3000)
	bed1  = snowflake.ID(4000)
	bed2  = snowflake.ID(4001)
)

type fixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	access   accessdomain.Service
	registry *prometheus.Registry
}

type option func(*Params)

func withSoftLock(svc *softlock.Service) option {
	return func(p *Params) { p.SoftLock = svc }
}

func withRepo(wrap func(domain.Repository) domain.Repository) option {
	return func(p *Params) { p.Repo = wrap(p.Repo) }
}

// interleavingRepo runs a hook once, right after the next armed call, to
// stand in for another transaction committing between a read and a write.
type interleavingRepo struct {
	domain.Repository
	afterListOnUnit func(db *gorm.DB)
	afterFind       func(db *gorm.DB, o *domain.Occupancy)
}

func (r *interleavingRepo) ListActiveOnUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]domain.Occupancy, error) {
	out, err := r.Repository.ListActiveOnUnit(ctx, db, unitID)
	if hook := r.afterListOnUnit; hook != nil && err == nil {
		r.afterListOnUnit = nil
		hook(db)
	}
	return out, err
}

func (r *interleavingRepo) Find(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Occupancy, error) {
	out, err := r.Repository.Find(ctx, db, accountID, id)
	if hook := r.afterFind; hook != nil && err == nil && out != nil {
		r.afterFind = nil
		hook(db, out)
	}
	return out, err
}

func setup(t *testing.T, opts ...option) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.Member{},
		&accessdomain.Grant{},
		&auditdomain.AuditLog{},
		&inventorydomain.Building{},
		&inventorydomain.Unit{},
		&inventorydomain.PGRoom{},
		&inventorydomain.Bed{},
		&tenantdomain.Tenant{},
		&domain.Occupancy{},
		&domain.RentEntry{},
		&domain.Issue{},
	))
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX ux_occupancies_active_bed ON occupancies (bed_id) WHERE is_active AND bed_id IS NOT NULL`,
		`CREATE UNIQUE INDEX ux_occupancies_active_primary_unit ON occupancies (unit_id) WHERE is_active AND is_primary AND unit_id IS NOT NULL`,
		`CREATE UNIQUE INDEX ux_occupancies_active_tenant ON occupancies (tenant_id) WHERE is_active`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	seed(t, db)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: auditrepository.Provide(),
	})
	accessSvc := accessservice.New(accessservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: accessrepository.Provide(), AuditSvc: auditSvc,
	})
	registry := prometheus.NewRegistry()
	occMetrics := metrics.NewOccupancyMetrics(registry, metrics.Config{})

	params := Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            fake,
		Repo:             repository.Provide(),
		AccessSvc:        accessSvc,
		AuditSvc:         auditSvc,
		Policy:           config.NewStaticPolicyHolder(config.DefaultPolicy()),
		OccupancyMetrics: occMetrics,
	}
	for _, opt := range opts {
		opt(&params)
	}

	return fixture{
		svc:      New(params).(*Service),
		db:       db,
		clock:    fake,
		access:   accessSvc,
		registry: registry,
	}
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&[]accountdomain.Member{
		{ID: 11, AccountID: 1, Name: "Owner", Email: "owner@example.com", Role: accountdomain.RoleOwner},
		{ID: 12, AccountID: 1, Name: "Manager", Email: "manager@example.com", Role: accountdomain.RoleManager},
		{ID: 21, AccountID: 2, Name: "Other", Email: "other@example.com", Role: accountdomain.RoleOwner},
	}).Error)
	require.NoError(t, db.Create(&[]inventorydomain.Building{
		{ID: buildingA, AccountID: 1, Name: "Sunrise", Slug: "sunrise", TotalFloors: 4, NoticePeriodDays: 30, CreatedAt: now, UpdatedAt: now},
		{ID: buildingB, AccountID: 2, Name: "Elsewhere", Slug: "elsewhere", TotalFloors: 2, NoticePeriodDays: 30, CreatedAt: now, UpdatedAt: now},
	}).Error)
	require.NoError(t, db.Create(&[]inventorydomain.Unit{
		{ID: flatA, AccountID: 1, BuildingID: buildingA, UnitNumber: "101", UnitType: inventorydomain.UnitTypeFlat, ExpectedRent: 15000, Deposit: 30000, Status: inventorydomain.StatusVacant, CreatedAt: now, UpdatedAt: now},
		{ID: flatB, AccountID: 1, BuildingID: buildingA, UnitNumber: "102", UnitType: inventorydomain.UnitTypeFlat, ExpectedRent: 12000, Status: inventorydomain.StatusVacant, CreatedAt: now, UpdatedAt: now},
		{ID: pgUnit, AccountID: 1, BuildingID: buildingA, UnitNumber: "201", UnitType: inventorydomain.UnitTypePG, Status: inventorydomain.StatusVacant, CreatedAt: now, UpdatedAt: now},
		{ID: foreignFl, AccountID: 2, BuildingID: buildingB, UnitNumber: "1", UnitType: inventorydomain.UnitTypeFlat, ExpectedRent: 9000, Status: inventorydomain.StatusVacant, CreatedAt: now, UpdatedAt: now},
	}).Error)
	require.NoError(t, db.Create(&inventorydomain.PGRoom{ID: roomA, AccountID: 1, UnitID: pgUnit, RoomNumber: "A", SharingCount: 2, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&[]inventorydomain.Bed{
		{ID: bed1, AccountID: 1, RoomID: roomA, BedNumber: "1", Status: inventorydomain.StatusVacant, CreatedAt: now},
		{ID: bed2, AccountID: 1, RoomID: roomA, BedNumber: "2", Status: inventorydomain.StatusVacant, CreatedAt: now},
	}).Error)

	tenants := []tenantdomain.Tenant{}
	for i := 0; i < 10; i++ {
		tenants = append(tenants, tenantdomain.Tenant{
			ID: snowflake.ID(501 + i), AccountID: 1, Name: fmt.Sprintf("Tenant %d", i+1), Phone: "98450000" + fmt.Sprint(10+i),
			Metadata: datatypes.JSONMap{}, CreatedAt: now, UpdatedAt: now,
		})
	}
	tenants = append(tenants, tenantdomain.Tenant{
		ID: 601, AccountID: 2, Name: "Foreign", Phone: "9000000000", Metadata: datatypes.JSONMap{}, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, db.Create(&tenants).Error)
}

func int64Ptr(v int64) *int64 { return &v }

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, pair := range m.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func unitStatus(t *testing.T, db *gorm.DB, id snowflake.ID) string {
	t.Helper()
	var status string
	require.NoError(t, db.Raw(`SELECT status FROM units WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func bedStatus(t *testing.T, db *gorm.DB, id snowflake.ID) string {
	t.Helper()
	var status string
	require.NoError(t, db.Raw(`SELECT status FROM beds WHERE id = ?`, id).Scan(&status).Error)
	return status
}

func dateString(tm *time.Time) string {
	if tm == nil {
		return ""
	}
	return tm.UTC().Format("2006-01-02")
}

func TestFlatPrimaryAndCoOccupant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	assert.True(t, first.IsPrimary)
	assert.True(t, first.IsActive)
	assert.Equal(t, int64(15000), first.Rent)
	assert.Equal(t, buildingA, first.BuildingID)
	assert.Equal(t, domain.NoticeNone, first.NoticeState)
	assert.Equal(t, string(inventorydomain.StatusOccupied), unitStatus(t, f.db, flatA))

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 502, Target: domain.Target{UnitID: flatA}})
	assert.ErrorIs(t, err, domain.ErrResourceAlreadyOccupied)

	co, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)
	assert.False(t, co.IsPrimary)
	assert.Equal(t, int64(0), co.Rent)

	_, err = f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 501})
	assert.ErrorIs(t, err, domain.ErrTenantAlreadyPlaced)

	_, err = f.svc.AddCoOccupant(ctx, owner, pgUnit, domain.AddCoOccupantRequest{TenantID: 503})
	assert.ErrorIs(t, err, domain.ErrNotFlat)

	assert.Equal(t, float64(1), counterValue(t, f.registry, "kiraya_occupancy_conflicts_total", "reason", metrics.ConflictOccupied))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "kiraya_occupancy_conflicts_total", "reason", metrics.ConflictTenantBusy))
}

func TestCreateRentOverride(t *testing.T) {
	f := setup(t)

	view, err := f.svc.Create(context.Background(), owner, domain.CreateRequest{
		TenantID: 501,
		Target:   domain.Target{UnitID: flatB},
		Rent:     int64Ptr(11000),
		Deposit:  int64Ptr(22000),
		Metadata: map[string]any{"source": "walk-in"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11000), view.Rent)
	assert.Equal(t, int64(22000), view.Deposit)
	assert.Equal(t, "2024-06-01", dateString(&view.StartDate))

	stored, err := f.svc.Get(context.Background(), owner, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "walk-in", stored.Metadata["source"])
}

func TestCreateValidatesTargetAndTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignmentTarget)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA, BedID: bed1}})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignmentTarget)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: pgUnit}})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignmentTarget)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{BedID: bed1}})
	assert.ErrorIs(t, err, domain.ErrRentRequired)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}, Rent: int64Ptr(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidRent)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 601, Target: domain.Target{UnitID: flatA}})
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: foreignFl}})
	assert.ErrorIs(t, err, accessdomain.ErrPermissionDenied)

	_, err = f.svc.Create(ctx, outside, domain.CreateRequest{TenantID: 601, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(5000)})
	assert.ErrorIs(t, err, accessdomain.ErrPermissionDenied)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM occupancies`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestTenantHoldsOneActiveOccupancy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(6000)})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	assert.ErrorIs(t, err, domain.ErrTenantAlreadyPlaced)
	assert.Equal(t, string(inventorydomain.StatusVacant), unitStatus(t, f.db, flatA))
}

func TestBedOccupancyHasNoPrimary(t *testing.T) {
	f := setup(t)

	view, err := f.svc.Create(context.Background(), owner, domain.CreateRequest{
		TenantID: 503,
		Target:   domain.Target{BedID: bed1},
		Rent:     int64Ptr(7500),
	})
	require.NoError(t, err)
	assert.False(t, view.IsPrimary)
	assert.Equal(t, int64(7500), view.Rent)
	require.NotNil(t, view.BedID)
	assert.Equal(t, bed1, *view.BedID)
	assert.Nil(t, view.UnitID)
	assert.Equal(t, string(inventorydomain.StatusOccupied), bedStatus(t, f.db, bed1))
	assert.Equal(t, string(inventorydomain.StatusVacant), bedStatus(t, f.db, bed2))
}

func TestConcurrentCreatesOnOneBed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		occupied int
		other    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(tenantID snowflake.ID) {
			defer wg.Done()
			_, err := f.svc.Create(ctx, owner, domain.CreateRequest{
				TenantID: tenantID,
				Target:   domain.Target{BedID: bed1},
				Rent:     int64Ptr(6000),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, domain.ErrResourceAlreadyOccupied):
				occupied++
			default:
				other = append(other, err)
			}
		}(snowflake.ID(501 + i))
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, success)
	assert.Equal(t, attempts-1, occupied)

	var active int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM occupancies WHERE bed_id = ? AND is_active = ?`, bed1, true).Scan(&active).Error)
	assert.Equal(t, int64(1), active)
	assert.Equal(t, string(inventorydomain.StatusOccupied), bedStatus(t, f.db, bed1))
}

func TestConcurrentCreatesOnOneFlat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const attempts = 5
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(tenantID snowflake.ID) {
			defer wg.Done()
			_, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: tenantID, Target: domain.Target{UnitID: flatA}})
			results <- err
		}(snowflake.ID(501 + i))
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrResourceAlreadyOccupied)
	}
	assert.Equal(t, 1, success)

	var primaries int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM occupancies WHERE unit_id = ? AND is_active = ? AND is_primary = ?`, flatA, true, true).Scan(&primaries).Error)
	assert.Equal(t, int64(1), primaries)
}

func TestManagerNeedsGrant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, manager, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	assert.ErrorIs(t, err, accessdomain.ErrPermissionDenied)

	_, err = f.access.GrantBuildingAccess(ctx, owner, manager.MemberID, buildingA)
	require.NoError(t, err)

	view, err := f.svc.Create(ctx, manager, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)

	require.NoError(t, f.access.RevokeBuildingAccess(ctx, owner, manager.MemberID, buildingA))
	_, err = f.svc.Get(ctx, manager, view.ID)
	assert.ErrorIs(t, err, accessdomain.ErrPermissionDenied)

	list, err := f.svc.List(ctx, manager, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVacateBlockedUntilForced(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)

	tenantID := snowflake.ID(501)
	require.NoError(t, f.db.Create(&domain.RentEntry{
		ID: 9001, AccountID: 1, OccupancyID: view.ID, Month: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount: 15000, PaidAmount: 5000, Status: domain.RentPartial, CreatedAt: time.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&domain.Issue{
		ID: 9101, AccountID: 1, UnitID: flatA, TenantID: &tenantID, Title: "Leaking tap", Status: domain.IssueAssigned, CreatedAt: time.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&domain.Issue{
		ID: 9102, AccountID: 1, UnitID: flatA, TenantID: &tenantID, Title: "Old", Status: domain.IssueResolved, CreatedAt: time.Now(),
	}).Error)

	_, err = f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{})
	require.Error(t, err)
	var blocked *domain.CheckoutBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, []string{domain.BlockerPendingRent, domain.BlockerOpenIssues, domain.BlockerNoticeNotGiven}, blocked.Codes())
	assert.ErrorIs(t, err, domain.ErrOutstandingDuesOrIssues)
	assert.ErrorIs(t, err, domain.ErrNoticePeriodNotSatisfied)
	assert.Equal(t, string(inventorydomain.StatusOccupied), unitStatus(t, f.db, flatA))

	result, err := f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{Force: true, Reason: "tenant absconded"})
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 3)
	assert.False(t, result.Occupancy.IsActive)
	assert.Equal(t, domain.NoticeVacated, result.Occupancy.NoticeState)
	assert.Equal(t, "2024-06-01", dateString(result.Occupancy.EndDate))
	assert.Equal(t, string(inventorydomain.StatusVacant), unitStatus(t, f.db, flatA))

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "occupancy.force_checkout").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, view.ID.String(), *logs[0].TargetID)
	require.NotNil(t, logs[0].BuildingID)
	assert.Equal(t, buildingA, *logs[0].BuildingID)

	_, err = f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{Force: true})
	assert.ErrorIs(t, err, domain.ErrAlreadyInactive)
}

func TestVacateAfterNoticePeriodElapses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 503, Target: domain.Target{BedID: bed2}, Rent: int64Ptr(5000)})
	require.NoError(t, err)

	noticed, err := f.svc.GiveNotice(ctx, owner, view.ID, domain.GiveNoticeRequest{Reason: "relocating"})
	require.NoError(t, err)
	assert.Equal(t, domain.NoticeRunning, noticed.NoticeState)
	assert.Equal(t, 30, noticed.DaysRemaining)

	_, err = f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{})
	assert.ErrorIs(t, err, domain.ErrNoticePeriodNotSatisfied)
	assert.False(t, errors.Is(err, domain.ErrOutstandingDuesOrIssues))

	f.clock.Advance(30 * 24 * time.Hour)

	current, err := f.svc.Get(ctx, owner, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NoticeEligible, current.NoticeState)

	result, err := f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, string(inventorydomain.StatusVacant), bedStatus(t, f.db, bed2))
	assert.Equal(t, float64(0), counterValue(t, f.registry, "kiraya_checkout_forced_total", "", ""))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "kiraya_checkout_blocked_total", "code", domain.BlockerNoticePeriodRunning))
}

func TestGiveThenCancelNoticeLeavesCleanRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	before, err := f.svc.Get(ctx, owner, view.ID)
	require.NoError(t, err)

	noticeDate := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	noticed, err := f.svc.GiveNotice(ctx, owner, view.ID, domain.GiveNoticeRequest{NoticeDate: &noticeDate, Reason: "job change"})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", dateString(noticed.NoticeDate))
	assert.Equal(t, "2024-07-10", dateString(noticed.ExpectedCheckoutDate))
	assert.Equal(t, 30, noticed.NoticePeriodDays)
	assert.Equal(t, "job change", noticed.NoticeReason)

	_, err = f.svc.GiveNotice(ctx, owner, view.ID, domain.GiveNoticeRequest{})
	assert.ErrorIs(t, err, domain.ErrNoticeAlreadyGiven)

	cancelled, err := f.svc.CancelNotice(ctx, owner, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NoticeNone, cancelled.NoticeState)

	after, err := f.svc.Get(ctx, owner, view.ID)
	require.NoError(t, err)
	assert.Nil(t, after.NoticeDate)
	assert.Nil(t, after.ExpectedCheckoutDate)
	assert.Equal(t, before.NoticeReason, after.NoticeReason)
	assert.Equal(t, before.NoticePeriodDays, after.NoticePeriodDays)
	assert.Equal(t, before.NoticeState, after.NoticeState)
	assert.Equal(t, before.DaysRemaining, after.DaysRemaining)
	assert.Equal(t, before.Rent, after.Rent)
	assert.Equal(t, before.IsPrimary, after.IsPrimary)

	_, err = f.svc.CancelNotice(ctx, owner, view.ID)
	assert.ErrorIs(t, err, domain.ErrNoNotice)
}

func TestNoticePeriodChangeIsNotRetroactive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	_, err = f.svc.GiveNotice(ctx, owner, view.ID, domain.GiveNoticeRequest{})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE buildings SET notice_period_days = 7 WHERE id = ?`, buildingA).Error)

	current, err := f.svc.Get(ctx, owner, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, current.NoticePeriodDays)
	assert.Equal(t, "2024-07-01", dateString(current.ExpectedCheckoutDate))

	other, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 502, Target: domain.Target{UnitID: flatB}})
	require.NoError(t, err)
	noticed, err := f.svc.GiveNotice(ctx, owner, other.ID, domain.GiveNoticeRequest{})
	require.NoError(t, err)
	assert.Equal(t, 7, noticed.NoticePeriodDays)
}

func TestReassignFlatPrimaryToBedPromotesCoOccupant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	primary, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	co, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)

	_, err = f.svc.Reassign(ctx, owner, primary.ID, domain.ReassignRequest{Target: domain.Target{UnitID: flatA}})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignmentTarget)

	moved, err := f.svc.Reassign(ctx, owner, primary.ID, domain.ReassignRequest{
		Target: domain.Target{BedID: bed1},
		Rent:   int64Ptr(8000),
	})
	require.NoError(t, err)
	assert.False(t, moved.IsPrimary)
	assert.Equal(t, int64(8000), moved.Rent)
	assert.Nil(t, moved.UnitID)
	require.NotNil(t, moved.BedID)
	assert.Equal(t, bed1, *moved.BedID)

	promoted, err := f.svc.Get(ctx, owner, co.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsPrimary)
	assert.Equal(t, int64(15000), promoted.Rent)

	assert.Equal(t, string(inventorydomain.StatusOccupied), unitStatus(t, f.db, flatA))
	assert.Equal(t, string(inventorydomain.StatusOccupied), bedStatus(t, f.db, bed1))
}

func TestReassignBedToFlatAndBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 503, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(6000)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 504, Target: domain.Target{BedID: bed2}, Rent: int64Ptr(6000)})
	require.NoError(t, err)

	_, err = f.svc.Reassign(ctx, owner, view.ID, domain.ReassignRequest{Target: domain.Target{BedID: bed2}})
	assert.ErrorIs(t, err, domain.ErrResourceAlreadyOccupied)

	moved, err := f.svc.Reassign(ctx, owner, view.ID, domain.ReassignRequest{Target: domain.Target{UnitID: flatB}})
	require.NoError(t, err)
	assert.True(t, moved.IsPrimary)
	assert.Equal(t, int64(12000), moved.Rent)
	assert.Equal(t, string(inventorydomain.StatusVacant), bedStatus(t, f.db, bed1))
	assert.Equal(t, string(inventorydomain.StatusOccupied), unitStatus(t, f.db, flatB))

	back, err := f.svc.Reassign(ctx, owner, view.ID, domain.ReassignRequest{Target: domain.Target{BedID: bed1}})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), back.Rent)
	assert.Equal(t, string(inventorydomain.StatusVacant), unitStatus(t, f.db, flatB))
}

func TestSetPrimarySwapsRent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	second, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)

	chosen, err := f.svc.SetPrimary(ctx, owner, second.ID)
	require.NoError(t, err)
	assert.True(t, chosen.IsPrimary)
	assert.Equal(t, int64(15000), chosen.Rent)

	demoted, err := f.svc.Get(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsPrimary)
	assert.Equal(t, int64(0), demoted.Rent)

	bedView, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 503, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(5000)})
	require.NoError(t, err)
	_, err = f.svc.SetPrimary(ctx, owner, bedView.ID)
	assert.ErrorIs(t, err, domain.ErrNotFlat)
}

func TestVacatingPrimaryPromotesEarliestCoOccupant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	primary, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	third, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 503})
	require.NoError(t, err)

	result, err := f.svc.Vacate(ctx, owner, primary.ID, domain.VacateRequest{Force: true})
	require.NoError(t, err)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, second.ID, *result.Promoted)
	assert.Equal(t, string(inventorydomain.StatusOccupied), unitStatus(t, f.db, flatA))

	got, err := f.svc.Get(ctx, owner, third.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPrimary)

	for _, id := range []snowflake.ID{second.ID, third.ID} {
		_, err := f.svc.Vacate(ctx, owner, id, domain.VacateRequest{Force: true})
		require.NoError(t, err)
	}
	assert.Equal(t, string(inventorydomain.StatusVacant), unitStatus(t, f.db, flatA))
}

func TestListFiltersByNoticeState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 502, Target: domain.Target{UnitID: flatB}})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 503, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(4000)})
	require.NoError(t, err)

	past := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.GiveNotice(ctx, owner, a.ID, domain.GiveNoticeRequest{})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE occupancies SET start_date = ? WHERE id = ?`, past, b.ID).Error)
	_, err = f.svc.GiveNotice(ctx, owner, b.ID, domain.GiveNoticeRequest{NoticeDate: &past})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, owner, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	running, err := f.svc.List(ctx, owner, domain.ListFilter{NoticeState: domain.NoticeRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	eligible, err := f.svc.List(ctx, owner, domain.ListFilter{NoticeState: domain.NoticeEligible})
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, b.ID, eligible[0].ID)
	assert.True(t, eligible[0].Overdue)

	byTenant, err := f.svc.List(ctx, owner, domain.ListFilter{TenantID: 503})
	require.NoError(t, err)
	assert.Len(t, byTenant, 1)

	_, err = f.svc.List(ctx, owner, domain.ListFilter{NoticeState: "SOMETIME"})
	assert.ErrorIs(t, err, domain.ErrInvalidNoticeState)

	_, err = f.svc.List(ctx, owner, domain.ListFilter{BuildingID: buildingB})
	assert.ErrorIs(t, err, accessdomain.ErrPermissionDenied)

	summaries, overdue, err := f.svc.SweepNotices(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.NoticeSummary{AccountID: 1, Running: 1, Eligible: 1, Overdue: 1}, summaries[0])
	require.Len(t, overdue, 1)
	assert.Equal(t, b.ID, overdue[0].ID)
}

func TestEditingMarkerBlocksOtherMembers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC))
	locks := softlock.NewService(softlock.Params{
		Store:  softlock.NewRedisStore(client),
		Log:    zap.NewNop(),
		Clock:  fake,
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
	})
	f := setup(t, withSoftLock(locks))
	ctx := context.Background()

	_, err := locks.Acquire(ctx, manager.MemberID, softlock.KindBed, bed1)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{BedID: bed1}, Rent: int64Ptr(5000)})
	assert.ErrorIs(t, err, domain.ErrResourceBeingEdited)

	_, err = locks.Acquire(ctx, owner.MemberID, softlock.KindBed, bed2)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{BedID: bed2}, Rent: int64Ptr(5000)})
	require.NoError(t, err)

	mr.Close()
	_, err = f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 502, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
}

func writeNotice(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()
	noticed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	expected := noticed.AddDate(0, 0, 30)
	require.NoError(t, db.Exec(
		`UPDATE occupancies SET notice_date = ?, expected_checkout_date = ?, notice_period_days = ?, notice_reason = ? WHERE id = ?`,
		noticed, expected, 30, "moving out", id,
	).Error)
}

func TestPromotionKeepsConcurrentNotice(t *testing.T) {
	repo := &interleavingRepo{}
	f := setup(t, withRepo(func(inner domain.Repository) domain.Repository {
		repo.Repository = inner
		return repo
	}))
	ctx := context.Background()

	primary, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	co, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)

	repo.afterListOnUnit = func(db *gorm.DB) { writeNotice(t, db, co.ID) }

	result, err := f.svc.Vacate(ctx, owner, primary.ID, domain.VacateRequest{Force: true})
	require.NoError(t, err)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, co.ID, *result.Promoted)

	got, err := f.svc.Get(ctx, owner, co.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrimary)
	assert.Equal(t, int64(15000), got.Rent)
	require.NotNil(t, got.NoticeDate)
	assert.Equal(t, "2024-07-01", dateString(got.ExpectedCheckoutDate))
	assert.Equal(t, "moving out", got.NoticeReason)
	assert.Equal(t, domain.NoticeRunning, got.NoticeState)
}

func TestSetPrimaryKeepsConcurrentNoticeOnDemoted(t *testing.T) {
	repo := &interleavingRepo{}
	f := setup(t, withRepo(func(inner domain.Repository) domain.Repository {
		repo.Repository = inner
		return repo
	}))
	ctx := context.Background()

	first, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)
	second, err := f.svc.AddCoOccupant(ctx, owner, flatA, domain.AddCoOccupantRequest{TenantID: 502})
	require.NoError(t, err)

	repo.afterListOnUnit = func(db *gorm.DB) { writeNotice(t, db, first.ID) }

	chosen, err := f.svc.SetPrimary(ctx, owner, second.ID)
	require.NoError(t, err)
	assert.True(t, chosen.IsPrimary)

	demoted, err := f.svc.Get(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsPrimary)
	assert.Equal(t, int64(0), demoted.Rent)
	require.NotNil(t, demoted.NoticeDate)
	assert.Equal(t, domain.NoticeRunning, demoted.NoticeState)
}

func TestOccupancyMovedBeforeLockIsRetryable(t *testing.T) {
	repo := &interleavingRepo{}
	f := setup(t, withRepo(func(inner domain.Repository) domain.Repository {
		repo.Repository = inner
		return repo
	}))
	ctx := context.Background()

	view, err := f.svc.Create(ctx, owner, domain.CreateRequest{TenantID: 501, Target: domain.Target{UnitID: flatA}})
	require.NoError(t, err)

	// The pre-read sees flatA; the row moves to a bed before the lock is taken.
	repo.afterFind = func(db *gorm.DB, o *domain.Occupancy) {
		require.NoError(t, db.Exec(
			`UPDATE occupancies SET unit_id = NULL, bed_id = ?, is_primary = ? WHERE id = ?`,
			bed2, false, o.ID,
		).Error)
	}

	_, err = f.svc.Vacate(ctx, owner, view.ID, domain.VacateRequest{Force: true})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	got, err := f.svc.Get(ctx, owner, view.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.BedID)
	assert.Equal(t, bed2, *got.BedID)
	assert.Nil(t, got.EndDate)
}
