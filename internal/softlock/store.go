// Package softlock keeps short-lived "someone is editing this" markers so two
// members do not work on the same unit or bed at once. The markers are
// advisory; row locks in the database remain the source of truth.
package softlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -destination=mock/mock_store.go -package=mock github.com/smallbiznis/kiraya/internal/softlock Store

// Store persists editing markers. Value is "<member id>:<token>".
type Store interface {
	// Acquire sets key to value only when no marker exists.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Release deletes key only when it still holds value.
	Release(ctx context.Context, key, value string) (bool, error)
	// Get returns the current value and remaining ttl; empty when absent.
	Get(ctx context.Context, key string) (string, time.Duration, error)
}

type Kind string

const (
	KindUnit      Kind = "unit"
	KindBed       Kind = "bed"
	KindOccupancy Kind = "occupancy"
)

func ParseKind(raw string) (Kind, bool) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case KindUnit, KindBed, KindOccupancy:
		return kind, true
	default:
		return "", false
	}
}

// Session is one member's editing marker on a resource.
type Session struct {
	Kind       Kind         `json:"kind"`
	ResourceID snowflake.ID `json:"resource_id"`
	MemberID   snowflake.ID `json:"member_id"`
	Token      string       `json:"token"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

var (
	ErrResourceBeingEdited = errors.New("resource_being_edited")
	ErrInvalidKind         = errors.New("invalid_editing_kind")
	ErrSessionNotHeld      = errors.New("editing_session_not_held")
)

func Key(kind Kind, id snowflake.ID) string {
	return fmt.Sprintf("editing_session:%s:%s", kind, id.String())
}

func encodeValue(memberID snowflake.ID, token string) string {
	return memberID.String() + ":" + token
}

func decodeValue(value string) (snowflake.ID, string, bool) {
	memberRaw, token, ok := strings.Cut(value, ":")
	if !ok || token == "" {
		return 0, "", false
	}
	memberID, err := snowflake.ParseString(memberRaw)
	if err != nil || memberID == 0 {
		return 0, "", false
	}
	return memberID, token, true
}
