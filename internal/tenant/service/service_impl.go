package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/tenant/domain"
	"github.com/smallbiznis/kiraya/pkg/db/option"
	"github.com/smallbiznis/kiraya/pkg/db/pagination"
	"github.com/smallbiznis/kiraya/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Tenant]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.Tenant](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, caller accountdomain.Caller, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	if caller.AccountID == 0 {
		return nil, accountdomain.ErrUnauthorized
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" || len(phone) > 15 {
		return nil, domain.ErrInvalidPhone
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		parsed, err := mail.ParseAddress(email)
		if err != nil {
			return nil, domain.ErrInvalidEmail
		}
		email = strings.ToLower(parsed.Address)
	}
	metadata := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	now := s.clock.Now()
	tenant := &domain.Tenant{
		ID:               s.genID.Generate(),
		AccountID:        caller.AccountID,
		Name:             name,
		Phone:            phone,
		Email:            email,
		IDProofType:      strings.TrimSpace(req.IDProofType),
		IDProofNumber:    strings.TrimSpace(req.IDProofNumber),
		Address:          strings.TrimSpace(req.Address),
		EmergencyContact: strings.TrimSpace(req.EmergencyContact),
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("account_id", caller.AccountID.String()),
		zap.String("tenant_id", tenant.ID.String()),
	)
	return tenant, nil
}

// Get returns ErrNotFound for tenants of other accounts as well.
func (s *Service) Get(ctx context.Context, caller accountdomain.Caller, id snowflake.ID) (*domain.Tenant, error) {
	if caller.AccountID == 0 || id == 0 {
		return nil, domain.ErrNotFound
	}
	tenant, err := s.repo.FindOne(ctx, &domain.Tenant{ID: id, AccountID: caller.AccountID})
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}
	return tenant, nil
}

func (s *Service) List(ctx context.Context, caller accountdomain.Caller, req domain.ListTenantRequest) (domain.ListTenantResponse, error) {
	if caller.AccountID == 0 {
		return domain.ListTenantResponse{}, accountdomain.ErrUnauthorized
	}

	pageSize := req.Size()
	opts := []option.QueryOption{
		option.WithOrder("id DESC"),
		option.WithLimit(pageSize + 1),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListTenantResponse{}, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil || cursorID == 0 {
			return domain.ListTenantResponse{}, domain.ErrInvalidPageToken
		}
		opts = append(opts, option.WithWhere("id < ?", cursorID))
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, option.WithWhere("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%"))
	}

	items, err := s.repo.Find(ctx, &domain.Tenant{AccountID: caller.AccountID}, opts...)
	if err != nil {
		return domain.ListTenantResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(t *domain.Tenant) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        t.ID.String(),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	tenants := make([]domain.Tenant, 0, len(items))
	for _, item := range items {
		tenants = append(tenants, *item)
	}
	return domain.ListTenantResponse{PageInfo: *pageInfo, Tenants: tenants}, nil
}
