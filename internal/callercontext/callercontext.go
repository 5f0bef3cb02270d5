package callercontext

import (
	"context"

	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

type callerKey struct{}

func WithCaller(ctx context.Context, caller accountdomain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (accountdomain.Caller, bool) {
	if ctx == nil {
		return accountdomain.Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(accountdomain.Caller)
	if !ok || caller.AccountID == 0 {
		return accountdomain.Caller{}, false
	}
	return caller, true
}
