package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kiraya/internal/access/domain"
	"github.com/smallbiznis/kiraya/internal/access/repository"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	auditrepository "github.com/smallbiznis/kiraya/internal/audit/repository"
	auditservice "github.com/smallbiznis/kiraya/internal/audit/service"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	owner1   = accountdomain.Caller{AccountID: 1, MemberID: 11, Role: accountdomain.RoleOwner}
	manager1 = accountdomain.Caller{AccountID: 1, MemberID: 12, Role: accountdomain.RoleManager}
	owner2   = accountdomain.Caller{AccountID: 2, MemberID: 21, Role: accountdomain.RoleOwner}
)

func setup(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Grant{}, &accountdomain.Member{}, &auditdomain.AuditLog{}))

	for _, stmt := range []string{
		`CREATE TABLE buildings (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL)`,
		`CREATE TABLE units (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, building_id INTEGER NOT NULL)`,
		`CREATE TABLE pg_rooms (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, unit_id INTEGER NOT NULL)`,
		`CREATE TABLE beds (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, room_id INTEGER NOT NULL)`,
		`CREATE TABLE occupancies (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, building_id INTEGER NOT NULL)`,
		`CREATE TABLE rent_entries (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, occupancy_id INTEGER NOT NULL)`,
		`CREATE TABLE issues (id INTEGER PRIMARY KEY, account_id INTEGER NOT NULL, unit_id INTEGER NOT NULL)`,
		`INSERT INTO buildings (id, account_id) VALUES (100, 1), (101, 1), (200, 2)`,
		`INSERT INTO units (id, account_id, building_id) VALUES (1000, 1, 100), (1010, 1, 101), (2000, 2, 200)`,
		`INSERT INTO pg_rooms (id, account_id, unit_id) VALUES (3000, 1, 1000)`,
		`INSERT INTO beds (id, account_id, room_id) VALUES (4000, 1, 3000)`,
		`INSERT INTO occupancies (id, account_id, building_id) VALUES (5000, 1, 100), (5100, 2, 200)`,
		`INSERT INTO rent_entries (id, account_id, occupancy_id) VALUES (6000, 1, 5000)`,
		`INSERT INTO issues (id, account_id, unit_id) VALUES (7000, 1, 1010)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	members := []accountdomain.Member{
		{ID: 11, AccountID: 1, Name: "Owner One", Email: "o1@example.com", Role: accountdomain.RoleOwner},
		{ID: 12, AccountID: 1, Name: "Manager One", Email: "m1@example.com", Role: accountdomain.RoleManager},
		{ID: 13, AccountID: 1, Name: "Manager Two", Email: "m2@example.com", Role: accountdomain.RoleManager},
		{ID: 21, AccountID: 2, Name: "Owner Two", Email: "o2@example.com", Role: accountdomain.RoleOwner},
		{ID: 22, AccountID: 2, Name: "Manager Three", Email: "m3@example.com", Role: accountdomain.RoleManager},
	}
	require.NoError(t, db.Create(&members).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	return New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	}).(*Service)
}

func TestOwnerAccessesEveryBuildingWithoutGrants(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	buildings, err := svc.AccessibleBuildings(ctx, owner1)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{100, 101}, buildings)

	ok, err := svc.CanAccess(ctx, owner1, 101)
	require.NoError(t, err)
	assert.True(t, ok)

	units, err := svc.AccessibleResourceIDs(ctx, owner1, domain.KindUnit)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1000, 1010}, units)

	issues, err := svc.AccessibleResourceIDs(ctx, owner1, domain.KindIssue)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{7000}, issues)
}

func TestManagerAccessFollowsGrantAndRevoke(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	buildings, err := svc.AccessibleBuildings(ctx, manager1)
	require.NoError(t, err)
	assert.Empty(t, buildings)
	assert.ErrorIs(t, svc.Authorize(ctx, manager1, 100), domain.ErrPermissionDenied)

	grant, err := svc.GrantBuildingAccess(ctx, owner1, 12, 100)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(11), grant.GrantedBy)

	require.NoError(t, svc.Authorize(ctx, manager1, 100))
	assert.ErrorIs(t, svc.Authorize(ctx, manager1, 101), domain.ErrPermissionDenied)

	beds, err := svc.AccessibleResourceIDs(ctx, manager1, domain.KindBed)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{4000}, beds)

	rents, err := svc.AccessibleResourceIDs(ctx, manager1, domain.KindRent)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{6000}, rents)

	issues, err := svc.AccessibleResourceIDs(ctx, manager1, domain.KindIssue)
	require.NoError(t, err)
	assert.Empty(t, issues)

	other := accountdomain.Caller{AccountID: 1, MemberID: 13, Role: accountdomain.RoleManager}
	ok, err := svc.CanAccess(ctx, other, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.RevokeBuildingAccess(ctx, owner1, 12, 100))
	ok, err = svc.CanAccess(ctx, manager1, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	var actions []string
	require.NoError(t, svc.db.Raw(`SELECT action FROM audit_logs ORDER BY created_at, id`).Scan(&actions).Error)
	assert.Equal(t, []string{"access.grant", "access.revoke"}, actions)
}

func TestGrantRejections(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	_, err := svc.GrantBuildingAccess(ctx, manager1, 13, 100)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.GrantBuildingAccess(ctx, owner1, 11, 100)
	assert.ErrorIs(t, err, domain.ErrGranteeIsOwner)

	_, err = svc.GrantBuildingAccess(ctx, owner1, 22, 100)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.GrantBuildingAccess(ctx, owner1, 99, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidGrantee)

	_, err = svc.GrantBuildingAccess(ctx, owner1, 12, 200)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.GrantBuildingAccess(ctx, owner1, 12, 100)
	require.NoError(t, err)
	_, err = svc.GrantBuildingAccess(ctx, owner1, 12, 100)
	assert.ErrorIs(t, err, domain.ErrGrantExists)

	assert.ErrorIs(t, svc.RevokeBuildingAccess(ctx, owner1, 12, 101), domain.ErrNotFound)
	assert.ErrorIs(t, svc.RevokeBuildingAccess(ctx, manager1, 12, 100), domain.ErrPermissionDenied)

	grants, err := svc.ListGrants(ctx, owner1, domain.GrantFilter{ManagerID: 12})
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	grants, err = svc.ListGrants(ctx, owner2, domain.GrantFilter{})
	require.NoError(t, err)
	assert.Empty(t, grants)

	_, err = svc.ListGrants(ctx, manager1, domain.GrantFilter{})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAccessFailsClosed(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	buildings, err := svc.AccessibleBuildings(ctx, accountdomain.Caller{})
	require.NoError(t, err)
	assert.Empty(t, buildings)

	buildings, err = svc.AccessibleBuildings(ctx, accountdomain.Caller{AccountID: 1, MemberID: 12, Role: "VIEWER"})
	require.NoError(t, err)
	assert.Empty(t, buildings)

	ok, err := svc.CanAccess(ctx, owner1, 200)
	require.NoError(t, err)
	assert.False(t, ok)

	// A grant row pointing at another account's building is never honoured.
	require.NoError(t, svc.db.Exec(
		`INSERT INTO building_access_grants (id, account_id, manager_id, building_id, granted_by, created_at)
		 VALUES (1, 1, 12, 200, 11, ?)`, time.Now().UTC(),
	).Error)
	buildings, err = svc.AccessibleBuildings(ctx, manager1)
	require.NoError(t, err)
	assert.Empty(t, buildings)

	_, _, err = svc.BuildingOf(ctx, domain.KindOccupancy, 424242)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.AuthorizeResource(ctx, owner1, domain.KindOccupancy, 5100)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	buildingID, err := svc.AuthorizeResource(ctx, owner2, domain.KindOccupancy, 5100)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(200), buildingID)

	_, err = svc.AccessibleResourceIDs(ctx, owner1, domain.ResourceKind("garage"))
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestBuildingOfJoinsThroughOwningBuilding(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	cases := []struct {
		kind     domain.ResourceKind
		id       snowflake.ID
		building snowflake.ID
	}{
		{domain.KindUnit, 1010, 101},
		{domain.KindPGRoom, 3000, 100},
		{domain.KindBed, 4000, 100},
		{domain.KindRent, 6000, 100},
		{domain.KindIssue, 7000, 101},
	}
	for _, tc := range cases {
		accountID, buildingID, err := svc.BuildingOf(ctx, tc.kind, tc.id)
		require.NoError(t, err, tc.kind)
		assert.Equal(t, snowflake.ID(1), accountID, tc.kind)
		assert.Equal(t, tc.building, buildingID, tc.kind)
	}
}
