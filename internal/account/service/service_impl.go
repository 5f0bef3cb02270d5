package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "kr_live_"
	apiKeySecretBytes = 32
	defaultPlan       = "basic"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// CreateAccount creates the account, its single owner and the owner's first
// API key in one transaction.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.CreateAccountResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	ownerName := strings.TrimSpace(req.OwnerName)
	if ownerName == "" {
		return nil, domain.ErrInvalidName
	}
	ownerEmail, err := normalizeEmail(req.OwnerEmail)
	if err != nil {
		return nil, err
	}
	plan := strings.TrimSpace(req.Plan)
	if plan == "" {
		plan = defaultPlan
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Plan:      plan,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := domain.Member{
		ID:        s.genID.Generate(),
		AccountID: account.ID,
		Name:      ownerName,
		Email:     ownerEmail,
		Role:      domain.RoleOwner,
		CreatedAt: now,
	}

	var secret *domain.SecretResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindAccountBySlug(ctx, tx, account.Slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAccountExists
		}
		if err := s.repo.InsertAccount(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAccountExists
			}
			return err
		}
		if err := s.repo.InsertMember(ctx, tx, &owner); err != nil {
			return err
		}
		secret, err = s.insertAPIKey(ctx, tx, owner, "owner")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("slug", account.Slug),
	)
	return &domain.CreateAccountResponse{Account: account, Owner: owner, APIKey: *secret}, nil
}

func (s *Service) AddMember(ctx context.Context, caller domain.Caller, req domain.AddMemberRequest) (*domain.Member, error) {
	if !caller.IsOwner() {
		return nil, domain.ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role := domain.Role(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	if role == "" {
		role = domain.RoleManager
	}
	// An account has exactly one owner, created with the account.
	if role != domain.RoleManager {
		return nil, domain.ErrInvalidRole
	}

	member := domain.Member{
		ID:        s.genID.Generate(),
		AccountID: caller.AccountID,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertMember(ctx, s.db, &member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}
	return &member, nil
}

func (s *Service) ListMembers(ctx context.Context, caller domain.Caller) ([]domain.Member, error) {
	if caller.AccountID == 0 {
		return nil, domain.ErrUnauthorized
	}
	members, err := s.repo.ListMembers(ctx, s.db, caller.AccountID)
	if err != nil {
		return nil, err
	}
	if !caller.IsOwner() {
		// Managers only see themselves.
		for _, m := range members {
			if m.ID == caller.MemberID {
				return []domain.Member{m}, nil
			}
		}
		return []domain.Member{}, nil
	}
	return members, nil
}

func (s *Service) GetMember(ctx context.Context, accountID, memberID snowflake.ID) (*domain.Member, error) {
	member, err := s.repo.FindMemberByID(ctx, s.db, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrMemberNotFound
	}
	if member.AccountID != accountID {
		return nil, domain.ErrForbidden
	}
	return member, nil
}

// IssueAPIKey creates a key for memberID. Owners may issue for any member of
// their account; managers only for themselves.
func (s *Service) IssueAPIKey(ctx context.Context, caller domain.Caller, memberID snowflake.ID, name string) (*domain.SecretResponse, error) {
	if caller.AccountID == 0 {
		return nil, domain.ErrUnauthorized
	}
	if !caller.IsOwner() && caller.MemberID != memberID {
		return nil, domain.ErrForbidden
	}
	member, err := s.GetMember(ctx, caller.AccountID, memberID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return s.insertAPIKey(ctx, s.db, *member, name)
}

// ResolveAPIKey maps a bearer token to its caller. Every failure collapses to
// ErrUnauthorized.
func (s *Service) ResolveAPIKey(ctx context.Context, raw string) (domain.Caller, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, apiKeyPrefix) {
		return domain.Caller{}, domain.ErrUnauthorized
	}

	key, err := s.repo.FindAPIKeyByHash(ctx, s.db, domain.HashAPIKey(raw))
	if err != nil {
		return domain.Caller{}, err
	}
	now := s.clock.Now()
	if key == nil || !key.IsActive || (key.ExpiresAt != nil && now.After(*key.ExpiresAt)) {
		return domain.Caller{}, domain.ErrUnauthorized
	}

	member, err := s.repo.FindMember(ctx, s.db, key.AccountID, key.MemberID)
	if err != nil {
		return domain.Caller{}, err
	}
	if member == nil || !member.Role.Valid() {
		return domain.Caller{}, domain.ErrUnauthorized
	}
	account, err := s.repo.FindAccountByID(ctx, s.db, key.AccountID)
	if err != nil {
		return domain.Caller{}, err
	}
	if account == nil || !account.IsActive {
		return domain.Caller{}, domain.ErrUnauthorized
	}

	if err := s.repo.TouchAPIKey(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to record api key use", zap.String("key_id", key.KeyID), zap.Error(err))
	}

	return domain.Caller{
		AccountID: member.AccountID,
		MemberID:  member.ID,
		Role:      member.Role,
	}, nil
}

func (s *Service) insertAPIKey(ctx context.Context, tx *gorm.DB, member domain.Member, name string) (*domain.SecretResponse, error) {
	id := s.genID.Generate()
	keyID := "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
	plain, err := generateSecret(keyID)
	if err != nil {
		return nil, err
	}
	key := domain.APIKey{
		ID:        id,
		AccountID: member.AccountID,
		MemberID:  member.ID,
		KeyID:     keyID,
		Name:      name,
		KeyHash:   domain.HashAPIKey(plain),
		IsActive:  true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertAPIKey(ctx, tx, &key); err != nil {
		return nil, err
	}
	return &domain.SecretResponse{KeyID: keyID, APIKey: plain}, nil
}

func generateSecret(keyID string) (string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + strings.ToLower(strings.TrimPrefix(keyID, "key_")) + "_" + hex.EncodeToString(secret), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
