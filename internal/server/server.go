package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kiraya/internal/access"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	"github.com/smallbiznis/kiraya/internal/account"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/audit"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/authorization"
	"github.com/smallbiznis/kiraya/internal/cache"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/inventory"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	"github.com/smallbiznis/kiraya/internal/observability"
	obslogger "github.com/smallbiznis/kiraya/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kiraya/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kiraya/internal/observability/tracing"
	"github.com/smallbiznis/kiraya/internal/occupancy"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/providers"
	"github.com/smallbiznis/kiraya/internal/ratelimit"
	"github.com/smallbiznis/kiraya/internal/softlock"
	"github.com/smallbiznis/kiraya/internal/statement"
	statementdomain "github.com/smallbiznis/kiraya/internal/statement/domain"
	"github.com/smallbiznis/kiraya/internal/tenant"
	tenantdomain "github.com/smallbiznis/kiraya/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	ratelimit.Module,
	authorization.Module,
	audit.Module,
	account.Module,
	access.Module,
	softlock.Module,
	inventory.Module,
	tenant.Module,
	occupancy.Module,
	providers.Module,
	statement.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	callers      cache.CallerCache
	accountSvc   accountdomain.Service
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	accessSvc    accessdomain.Service
	inventorySvc inventorydomain.Service
	tenantSvc    tenantdomain.Service
	occupancySvc occupancydomain.Service
	statementSvc statementdomain.Service
	softlocks    *softlock.Service
	writeLimiter *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Callers      cache.CallerCache
	AccountSvc   accountdomain.Service
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	AccessSvc    accessdomain.Service
	InventorySvc inventorydomain.Service
	TenantSvc    tenantdomain.Service
	OccupancySvc occupancydomain.Service
	StatementSvc statementdomain.Service
	SoftLocks    *softlock.Service
	WriteLimiter *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		callers:      p.Callers,
		accountSvc:   p.AccountSvc,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		accessSvc:    p.AccessSvc,
		inventorySvc: p.InventorySvc,
		tenantSvc:    p.TenantSvc,
		occupancySvc: p.OccupancySvc,
		statementSvc: p.StatementSvc,
		softlocks:    p.SoftLocks,
		writeLimiter: p.WriteLimiter,
	}
	if svc.callers == nil {
		svc.callers = cache.NewCallerCache()
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.APIKeyRequired())
	api.Use(s.WriteRateLimit())

	building := s.RequireBuildingAccess(accessdomain.KindBuilding, "id")
	unit := s.RequireBuildingAccess(accessdomain.KindUnit, "id")
	room := s.RequireBuildingAccess(accessdomain.KindPGRoom, "id")
	occupancy := s.RequireBuildingAccess(accessdomain.KindOccupancy, "id")

	// -------- Members --------
	api.GET("/me", s.Me)
	api.GET("/members", s.authorize(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	api.POST("/members", s.authorize(authorization.ObjectMember, authorization.ActionMemberCreate), s.AddMember)
	api.POST("/members/:id/api-keys", s.IssueAPIKey)

	// -------- Access --------
	api.GET("/access/buildings", s.authorize(authorization.ObjectAccess, authorization.ActionAccessView), s.ListAccessibleBuildings)
	api.GET("/access/resources/:kind", s.authorize(authorization.ObjectAccess, authorization.ActionAccessView), s.ListAccessibleResources)
	api.GET("/access/grants", s.authorize(authorization.ObjectGrant, authorization.ActionGrantView), s.ListGrants)
	api.POST("/access/grants", s.authorize(authorization.ObjectGrant, authorization.ActionGrantCreate), s.GrantBuildingAccess)
	api.DELETE("/access/grants", s.authorize(authorization.ObjectGrant, authorization.ActionGrantRevoke), s.RevokeBuildingAccess)

	// -------- Inventory --------
	api.GET("/buildings", s.authorize(authorization.ObjectBuilding, authorization.ActionBuildingView), s.ListBuildings)
	api.POST("/buildings", s.authorize(authorization.ObjectBuilding, authorization.ActionBuildingCreate), s.CreateBuilding)
	api.GET("/buildings/:id", s.authorize(authorization.ObjectBuilding, authorization.ActionBuildingView), building, s.GetBuilding)
	api.PATCH("/buildings/:id/notice-period", s.authorize(authorization.ObjectBuilding, authorization.ActionBuildingUpdateNoticePeriod), building, s.UpdateNoticePeriod)
	api.GET("/buildings/:id/units", s.authorize(authorization.ObjectUnit, authorization.ActionUnitView), building, s.ListUnits)
	api.POST("/buildings/:id/units", s.authorize(authorization.ObjectUnit, authorization.ActionUnitCreate), building, s.CreateUnit)
	api.POST("/units/:id/rooms", s.authorize(authorization.ObjectRoom, authorization.ActionRoomCreate), unit, s.CreateRoom)
	api.GET("/rooms/:id/beds", s.authorize(authorization.ObjectUnit, authorization.ActionUnitView), room, s.ListBeds)
	api.POST("/rooms/:id/beds", s.authorize(authorization.ObjectBed, authorization.ActionBedCreate), room, s.CreateBed)

	// -------- Tenants --------
	api.GET("/tenants", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenants)
	api.POST("/tenants", s.authorize(authorization.ObjectTenant, authorization.ActionTenantCreate), s.CreateTenant)
	api.GET("/tenants/:id", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenant)

	// -------- Occupancies --------
	api.GET("/occupancies", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyView), s.ListOccupancies)
	api.POST("/occupancies", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyCreate), s.CreateOccupancy)
	api.GET("/occupancies/:id", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyView), occupancy, s.GetOccupancy)
	api.POST("/occupancies/:id/reassign", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyReassign), occupancy, s.ReassignOccupancy)
	api.POST("/occupancies/:id/vacate", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyVacate), occupancy, s.VacateOccupancy)
	api.POST("/occupancies/:id/notice", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyNotice), occupancy, s.GiveNotice)
	api.DELETE("/occupancies/:id/notice", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyNotice), occupancy, s.CancelNotice)
	api.POST("/occupancies/:id/primary", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyPrimary), occupancy, s.SetPrimaryOccupant)
	api.GET("/occupancies/:id/statement", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyStatement), occupancy, s.DownloadStatement)
	api.POST("/units/:id/occupants", s.authorize(authorization.ObjectOccupancy, authorization.ActionOccupancyAddOccupant), unit, s.AddCoOccupant)

	// -------- Editing sessions --------
	api.GET("/editing-sessions/:kind/:id", s.authorize(authorization.ObjectEditingSession, authorization.ActionEditingSessionManage), s.GetEditingSession)
	api.POST("/editing-sessions/:kind/:id", s.authorize(authorization.ObjectEditingSession, authorization.ActionEditingSessionManage), s.StartEditingSession)
	api.DELETE("/editing-sessions/:kind/:id", s.authorize(authorization.ObjectEditingSession, authorization.ActionEditingSessionManage), s.EndEditingSession)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
