package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/account/repository"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Account{}, &domain.Member{}, &domain.APIKey{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, fake
}

func TestCreateAccountIssuesOwnerKey(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	resp, err := svc.CreateAccount(ctx, domain.CreateAccountRequest{
		Name:       "Sunrise Residency",
		OwnerName:  "Asha",
		OwnerEmail: "Asha@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "sunrise-residency", resp.Account.Slug)
	assert.Equal(t, domain.RoleOwner, resp.Owner.Role)
	assert.Equal(t, "asha@example.com", resp.Owner.Email)

	caller, err := svc.ResolveAPIKey(ctx, resp.APIKey.APIKey)
	require.NoError(t, err)
	assert.Equal(t, resp.Account.ID, caller.AccountID)
	assert.Equal(t, resp.Owner.ID, caller.MemberID)
	assert.True(t, caller.IsOwner())

	_, err = svc.CreateAccount(ctx, domain.CreateAccountRequest{
		Name:       "Sunrise Residency",
		OwnerName:  "Other",
		OwnerEmail: "other@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestResolveAPIKeyRejectsUnknownAndExpired(t *testing.T) {
	svc, fake := setupService(t)
	ctx := context.Background()

	_, err := svc.ResolveAPIKey(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.ResolveAPIKey(ctx, "kr_live_nope")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	resp, err := svc.CreateAccount(ctx, domain.CreateAccountRequest{Name: "A", OwnerName: "O", OwnerEmail: "o@example.com"})
	require.NoError(t, err)

	expires := fake.Now().Add(time.Hour)
	require.NoError(t, svc.db.Exec("UPDATE api_keys SET expires_at = ? WHERE key_id = ?", expires, resp.APIKey.KeyID).Error)
	fake.Advance(2 * time.Hour)

	_, err = svc.ResolveAPIKey(ctx, resp.APIKey.APIKey)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAddMemberRequiresOwnerAndManagerRole(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	resp, err := svc.CreateAccount(ctx, domain.CreateAccountRequest{Name: "A", OwnerName: "O", OwnerEmail: "o@example.com"})
	require.NoError(t, err)
	owner := domain.Caller{AccountID: resp.Account.ID, MemberID: resp.Owner.ID, Role: domain.RoleOwner}

	manager, err := svc.AddMember(ctx, owner, domain.AddMemberRequest{Name: "M", Email: "m@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, manager.Role)

	_, err = svc.AddMember(ctx, owner, domain.AddMemberRequest{Name: "X", Email: "x@example.com", Role: domain.RoleOwner})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = svc.AddMember(ctx, owner, domain.AddMemberRequest{Name: "M2", Email: "m@example.com"})
	assert.ErrorIs(t, err, domain.ErrMemberExists)

	asManager := domain.Caller{AccountID: resp.Account.ID, MemberID: manager.ID, Role: domain.RoleManager}
	_, err = svc.AddMember(ctx, asManager, domain.AddMemberRequest{Name: "Y", Email: "y@example.com"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.IssueAPIKey(ctx, asManager, resp.Owner.ID, "steal")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	secret, err := svc.IssueAPIKey(ctx, owner, manager.ID, "phone")
	require.NoError(t, err)
	caller, err := svc.ResolveAPIKey(ctx, secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, caller.Role)

	members, err := svc.ListMembers(ctx, asManager)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, manager.ID, members[0].ID)
}
