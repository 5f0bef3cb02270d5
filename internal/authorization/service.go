package authorization

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

// Service decides whether a caller's role allows an action on an object
// type. Building-level scoping is a separate check in the access engine.
type Service interface {
	Authorize(ctx context.Context, caller accountdomain.Caller, object string, action string) error
}

var (
	ErrInvalidActor   = errors.New("invalid_actor")
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidObject  = errors.New("invalid_object")
	ErrInvalidAction  = errors.New("invalid_action")
	ErrForbidden      = errors.New("forbidden")
)
