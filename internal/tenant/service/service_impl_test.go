package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/tenant/domain"
	"github.com/smallbiznis/kiraya/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Tenant{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
	}).(*Service)
}

func TestCreateAndGetAreAccountScoped(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	caller := accountdomain.Caller{AccountID: 1, MemberID: 10, Role: accountdomain.RoleManager}

	tenant, err := svc.Create(ctx, caller, domain.CreateTenantRequest{
		Name:  " Ravi Kumar ",
		Phone: "9812345678",
		Email: "Ravi@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", tenant.Name)
	assert.Equal(t, "ravi@example.com", tenant.Email)

	got, err := svc.Get(ctx, caller, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	_, err = svc.Get(ctx, accountdomain.Caller{AccountID: 2, MemberID: 20, Role: accountdomain.RoleOwner}, tenant.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateValidates(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	caller := accountdomain.Caller{AccountID: 1, MemberID: 10, Role: accountdomain.RoleOwner}

	_, err := svc.Create(ctx, caller, domain.CreateTenantRequest{Phone: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, caller, domain.CreateTenantRequest{Name: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)

	_, err = svc.Create(ctx, caller, domain.CreateTenantRequest{Name: "A", Phone: "1", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.Create(ctx, accountdomain.Caller{}, domain.CreateTenantRequest{Name: "A", Phone: "1"})
	assert.ErrorIs(t, err, accountdomain.ErrUnauthorized)
}

func TestListPaginatesAndFilters(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	caller := accountdomain.Caller{AccountID: 1, MemberID: 10, Role: accountdomain.RoleOwner}

	for _, name := range []string{"Anita", "Bala", "Chitra"} {
		_, err := svc.Create(ctx, caller, domain.CreateTenantRequest{Name: name, Phone: "98000"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, accountdomain.Caller{AccountID: 2, MemberID: 20, Role: accountdomain.RoleOwner}, domain.CreateTenantRequest{Name: "Zed", Phone: "1"})
	require.NoError(t, err)

	first, err := svc.List(ctx, caller, domain.ListTenantRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Tenants, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "Chitra", first.Tenants[0].Name)

	second, err := svc.List(ctx, caller, domain.ListTenantRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Tenants, 1)
	assert.Equal(t, "Anita", second.Tenants[0].Name)
	assert.False(t, second.HasMore)

	filtered, err := svc.List(ctx, caller, domain.ListTenantRequest{Name: "bal"})
	require.NoError(t, err)
	require.Len(t, filtered.Tenants, 1)
	assert.Equal(t, "Bala", filtered.Tenants[0].Name)

	_, err = svc.List(ctx, caller, domain.ListTenantRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
