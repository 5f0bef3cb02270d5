package softlock

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("softlock",
	fx.Provide(NewStore),
	fx.Provide(NewService),
)

type StoreParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
}

func NewStore(p StoreParams) Store {
	if p.Client == nil {
		p.Log.Named("softlock").Info("redis disabled, editing sessions are not tracked")
		return NoopStore{}
	}
	return NewRedisStore(p.Client)
}

type Params struct {
	fx.In

	Store  Store
	Log    *zap.Logger
	Clock  clock.Clock
	Policy *config.PolicyHolder `optional:"true"`
}

type Service struct {
	store  Store
	log    *zap.Logger
	clock  clock.Clock
	policy *config.PolicyHolder
}

func NewService(p Params) *Service {
	return &Service{
		store:  p.Store,
		log:    p.Log.Named("softlock.service"),
		clock:  p.Clock,
		policy: p.Policy,
	}
}

// Acquire starts an editing session. A member re-acquiring its own marker
// gets the existing session back.
func (s *Service) Acquire(ctx context.Context, memberID snowflake.ID, kind Kind, id snowflake.ID) (*Session, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, ErrInvalidKind
	}
	ttl := s.policy.Get().SoftLockTTL
	key := Key(kind, id)
	token := ulid.Make().String()

	ok, err := s.store.Acquire(ctx, key, encodeValue(memberID, token), ttl)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Session{
			Kind:       kind,
			ResourceID: id,
			MemberID:   memberID,
			Token:      token,
			ExpiresAt:  s.clock.Now().Add(ttl),
		}, nil
	}

	current, err := s.Holder(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current != nil && current.MemberID == memberID {
		return current, nil
	}
	return nil, ErrResourceBeingEdited
}

func (s *Service) Release(ctx context.Context, memberID snowflake.ID, kind Kind, id snowflake.ID, token string) error {
	if _, ok := ParseKind(string(kind)); !ok {
		return ErrInvalidKind
	}
	released, err := s.store.Release(ctx, Key(kind, id), encodeValue(memberID, token))
	if err != nil {
		return err
	}
	if !released {
		return ErrSessionNotHeld
	}
	return nil
}

// Holder returns the current session on a resource, or nil.
func (s *Service) Holder(ctx context.Context, kind Kind, id snowflake.ID) (*Session, error) {
	value, ttl, err := s.store.Get(ctx, Key(kind, id))
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	memberID, token, ok := decodeValue(value)
	if !ok {
		s.log.Warn("ignoring malformed editing marker", zap.String("key", Key(kind, id)))
		return nil, nil
	}
	return &Session{
		Kind:       kind,
		ResourceID: id,
		MemberID:   memberID,
		Token:      token,
		ExpiresAt:  s.clock.Now().Add(ttl),
	}, nil
}

// EnsureNotHeldByOther fails with ErrResourceBeingEdited when another member
// holds a marker on the resource. Store failures are logged and ignored.
func (s *Service) EnsureNotHeldByOther(ctx context.Context, memberID snowflake.ID, kind Kind, id snowflake.ID) error {
	holder, err := s.Holder(ctx, kind, id)
	if err != nil {
		s.log.Warn("editing marker lookup failed",
			zap.String("key", Key(kind, id)),
			zap.Error(err),
		)
		return nil
	}
	if holder != nil && holder.MemberID != memberID {
		return ErrResourceBeingEdited
	}
	return nil
}
