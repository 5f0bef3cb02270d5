package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/authorization"
	"github.com/smallbiznis/kiraya/internal/cache"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/ratelimit"
	"github.com/smallbiznis/kiraya/internal/softlock"
	statementdomain "github.com/smallbiznis/kiraya/internal/statement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ownerKey   = "kiraya_owner_key"
	managerKey = "kiraya_manager_key"
)

var (
	ownerCaller   = accountdomain.Caller{AccountID: 1, MemberID: 10, Role: accountdomain.RoleOwner}
	managerCaller = accountdomain.Caller{AccountID: 1, MemberID: 20, Role: accountdomain.RoleManager}
)

type fakeAccounts struct {
	accountdomain.Service
	resolveCalls int
}

func (f *fakeAccounts) ResolveAPIKey(ctx context.Context, raw string) (accountdomain.Caller, error) {
	f.resolveCalls++
	switch raw {
	case ownerKey:
		return ownerCaller, nil
	case managerKey:
		return managerCaller, nil
	default:
		return accountdomain.Caller{}, accountdomain.ErrUnauthorized
	}
}

type fakeAccess struct {
	accessdomain.Service
	buildings []snowflake.ID
	denied    bool
}

func (f *fakeAccess) AccessibleBuildings(ctx context.Context, caller accountdomain.Caller) ([]snowflake.ID, error) {
	return f.buildings, nil
}

func (f *fakeAccess) AuthorizeResource(ctx context.Context, caller accountdomain.Caller, kind accessdomain.ResourceKind, id snowflake.ID) (snowflake.ID, error) {
	if f.denied {
		return 0, accessdomain.ErrPermissionDenied
	}
	return 100, nil
}

type fakeOccupancies struct {
	occupancydomain.Service
	createErr  error
	vacateErr  error
	lastCreate occupancydomain.CreateRequest
	lastVacate occupancydomain.VacateRequest
	lastFilter occupancydomain.ListFilter
}

func (f *fakeOccupancies) Create(ctx context.Context, caller accountdomain.Caller, req occupancydomain.CreateRequest) (*occupancydomain.OccupancyView, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &occupancydomain.OccupancyView{
		Occupancy: occupancydomain.Occupancy{
			ID:        500,
			AccountID: caller.AccountID,
			TenantID:  req.TenantID,
			IsActive:  true,
			IsPrimary: true,
		},
		NoticeState: occupancydomain.NoticeNone,
	}, nil
}

func (f *fakeOccupancies) Vacate(ctx context.Context, caller accountdomain.Caller, id snowflake.ID, req occupancydomain.VacateRequest) (*occupancydomain.VacateResult, error) {
	f.lastVacate = req
	if f.vacateErr != nil {
		return nil, f.vacateErr
	}
	return &occupancydomain.VacateResult{
		Occupancy: occupancydomain.OccupancyView{
			Occupancy:   occupancydomain.Occupancy{ID: id},
			NoticeState: occupancydomain.NoticeVacated,
		},
		Warnings: []occupancydomain.Blocker{},
		Changes:  []occupancydomain.StatusChange{},
	}, nil
}

func (f *fakeOccupancies) List(ctx context.Context, caller accountdomain.Caller, filter occupancydomain.ListFilter) ([]occupancydomain.OccupancyView, error) {
	f.lastFilter = filter
	return nil, nil
}

type fakeStatements struct{}

func (fakeStatements) Render(ctx context.Context, caller accountdomain.Caller, occupancyID snowflake.ID) (*statementdomain.Document, error) {
	return &statementdomain.Document{
		Filename: fmt.Sprintf("statement-%s.pdf", occupancyID),
		Body:     strings.NewReader("%PDF-1.3 fake"),
	}, nil
}

type fakeAudit struct {
	auditdomain.Service
	lastReq auditdomain.ListAuditLogRequest
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastReq = req
	return auditdomain.ListAuditLogResponse{}, nil
}

type testServer struct {
	engine      *gin.Engine
	accounts    *fakeAccounts
	access      *fakeAccess
	occupancies *fakeOccupancies
	audit       *fakeAudit
	redis       *miniredis.Miniredis
}

type serverOption func(*config.Policy)

func setupServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	policy := config.DefaultPolicy()
	policy.WriteRatePerSecond = 100
	policy.WriteBurst = 100
	for _, opt := range opts {
		opt(&policy)
	}
	holder := config.NewStaticPolicyHolder(policy)

	ts := &testServer{
		accounts:    &fakeAccounts{},
		access:      &fakeAccess{buildings: []snowflake.ID{100, 200}},
		occupancies: &fakeOccupancies{},
		audit:       &fakeAudit{},
		redis:       mr,
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{Environment: "test"},
		Callers:      cache.NewCallerCache(),
		AccountSvc:   ts.accounts,
		AuthzSvc:     authz,
		AuditSvc:     ts.audit,
		AccessSvc:    ts.access,
		OccupancySvc: ts.occupancies,
		StatementSvc: fakeStatements{},
		SoftLocks: softlock.NewService(softlock.Params{
			Store:  softlock.NewRedisStore(client),
			Log:    zap.NewNop(),
			Clock:  clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
			Policy: holder,
		}),
		WriteLimiter: ratelimit.NewWriteLimiter(ratelimit.Params{
			Client: client,
			Policy: holder,
			Log:    zap.NewNop(),
		}),
	})
	ts.engine = engine
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAPIRequiresBearerKey(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/occupancies", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = ts.do(t, http.MethodGet, "/api/occupancies", "kiraya_unknown", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolvedCallerIsCached(t *testing.T) {
	ts := setupServer(t)

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodGet, "/api/access/buildings", managerKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, ts.accounts.resolveCalls)
}

func TestListAccessibleBuildings(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/access/buildings", managerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			BuildingIDs []string `json:"building_ids"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"100", "200"}, resp.Data.BuildingIDs)
}

func TestCreateOccupancyParsesBody(t *testing.T) {
	ts := setupServer(t)

	rent := int64(15000)
	rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, map[string]any{
		"tenant_id":  "42",
		"unit_id":    "7",
		"rent":       rent,
		"start_date": "2024-05-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := ts.occupancies.lastCreate
	assert.Equal(t, snowflake.ID(42), got.TenantID)
	assert.Equal(t, occupancydomain.Target{UnitID: 7}, got.Target)
	require.NotNil(t, got.Rent)
	assert.Equal(t, rent, *got.Rent)
	require.NotNil(t, got.StartDate)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *got.StartDate)
}

func TestCreateOccupancyRejectsBadDate(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, map[string]any{
		"tenant_id":  "42",
		"bed_id":     "9",
		"start_date": "01/05/2024",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "start_date", payload.Errors[0].Field)
}

func TestOccupancyConflictsAreRetryable(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"occupied", occupancydomain.ErrResourceAlreadyOccupied, true},
		{"being edited", occupancydomain.ErrResourceBeingEdited, true},
		{"lock timeout", occupancydomain.ErrLockTimeout, true},
		{"tenant placed", occupancydomain.ErrTenantAlreadyPlaced, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := setupServer(t)
			ts.occupancies.createErr = tc.err

			rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, map[string]any{
				"tenant_id": "42",
				"bed_id":    "9",
			})
			require.Equal(t, http.StatusConflict, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, "conflict", payload.Type)
			assert.Equal(t, tc.err.Error(), payload.Code)
			assert.Equal(t, tc.retryable, payload.Retryable)
		})
	}
}

func TestAssignmentTargetValidation(t *testing.T) {
	ts := setupServer(t)
	ts.occupancies.createErr = occupancydomain.ErrInvalidAssignmentTarget

	rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, map[string]any{
		"tenant_id": "42",
		"unit_id":   "7",
		"bed_id":    "9",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "target", payload.Errors[0].Field)
	assert.Equal(t, "invalid_assignment_target", payload.Errors[0].Code)
}

func TestPermissionDeniedMessage(t *testing.T) {
	ts := setupServer(t)
	ts.occupancies.createErr = accessdomain.ErrPermissionDenied

	rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, map[string]any{
		"tenant_id": "42",
		"unit_id":   "7",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you do not have access to this building", decodeError(t, rec).Message)
}

func TestBlockedVacateListsBlockers(t *testing.T) {
	ts := setupServer(t)
	ts.occupancies.vacateErr = &occupancydomain.CheckoutBlockedError{Blockers: []occupancydomain.Blocker{
		{Code: occupancydomain.BlockerPendingRent, Message: "2 rent entries are unpaid"},
		{Code: occupancydomain.BlockerNoticeNotGiven, Message: "notice has not been given"},
	}}

	rec := ts.do(t, http.MethodPost, "/api/occupancies/500/vacate", managerKey, map[string]any{
		"end_date": "2024-06-30",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "checkout_blocked", payload.Type)
	require.Len(t, payload.Blockers, 2)
	assert.Equal(t, occupancydomain.BlockerPendingRent, payload.Blockers[0].Code)
	assert.False(t, ts.occupancies.lastVacate.Force)
}

func TestForceVacateFromQuery(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/occupancies/500/vacate?force=true", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, ts.occupancies.lastVacate.Force)
	assert.Nil(t, ts.occupancies.lastVacate.EndDate)
}

func TestOwnerOnlyRoutes(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/access/grants", managerKey, map[string]any{
		"manager_id":  "20",
		"building_id": "100",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)

	rec = ts.do(t, http.MethodGet, "/api/audit-logs", managerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/audit-logs?building_id=100", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(1), ts.audit.lastReq.AccountID)
	assert.Equal(t, []snowflake.ID{100}, ts.audit.lastReq.BuildingIDs)
}

func TestListOccupanciesFilters(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/occupancies?building_id=100&active=true&notice_state=eligible", managerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())

	filter := ts.occupancies.lastFilter
	assert.Equal(t, snowflake.ID(100), filter.BuildingID)
	require.NotNil(t, filter.Active)
	assert.True(t, *filter.Active)
	assert.Equal(t, occupancydomain.NoticeEligible, filter.NoticeState)

	rec = ts.do(t, http.MethodGet, "/api/occupancies?notice_state=someday", managerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWritesAreRateLimitedPerAccount(t *testing.T) {
	ts := setupServer(t, func(p *config.Policy) {
		p.WriteRatePerSecond = 0.001
		p.WriteBurst = 1
	})
	body := map[string]any{"tenant_id": "42", "unit_id": "7"}

	rec := ts.do(t, http.MethodPost, "/api/occupancies", managerKey, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/occupancies", ownerKey, body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, rateLimitReasonAccountWrite, rec.Header().Get("X-Rate-Limited-Reason"))
	assert.True(t, decodeError(t, rec).Retryable)

	// reads do not spend tokens
	rec = ts.do(t, http.MethodGet, "/api/occupancies", ownerKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEditingSessionLifecycle(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/editing-sessions/bed/9", ownerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started struct {
		Data softlock.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.Data.Token)

	rec = ts.do(t, http.MethodPost, "/api/editing-sessions/bed/9", managerKey, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, decodeError(t, rec).Retryable)

	rec = ts.do(t, http.MethodGet, "/api/editing-sessions/bed/9", managerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var seen struct {
		Data softlock.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seen))
	assert.Equal(t, ownerCaller.MemberID, seen.Data.MemberID)
	assert.Empty(t, seen.Data.Token)

	rec = ts.do(t, http.MethodDelete, "/api/editing-sessions/bed/9", ownerKey, map[string]any{"token": started.Data.Token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/editing-sessions/bed/9", managerKey, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEditingSessionChecksBuildingAccess(t *testing.T) {
	ts := setupServer(t)
	ts.access.denied = true

	rec := ts.do(t, http.MethodPost, "/api/editing-sessions/unit/7", managerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/editing-sessions/room/7", managerKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadStatement(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/occupancies/500/statement", managerKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "statement-500.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestMalformedPathIDIsNotFound(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/occupancies/abc/statement", managerKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildingAccessCheckedBeforeHandler(t *testing.T) {
	ts := setupServer(t)
	ts.access.denied = true

	rec := ts.do(t, http.MethodPost, "/api/occupancies/500/vacate?force=true", ownerKey, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you do not have access to this building", decodeError(t, rec).Message)
	assert.False(t, ts.occupancies.lastVacate.Force)
}
