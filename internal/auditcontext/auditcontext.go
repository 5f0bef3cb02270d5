// Package auditcontext carries request attributes that audit entries record
// without every service having to thread them through its signatures.
package auditcontext

import (
	"context"
	"strings"
)

type key int

const (
	requestIDKey key = iota
	ipAddressKey
	userAgentKey
	actorTypeKey
	actorIDKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return withString(ctx, ipAddressKey, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringFrom(ctx, ipAddressKey)
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return withString(ctx, userAgentKey, ua)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringFrom(ctx, userAgentKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = withString(ctx, actorTypeKey, actorType)
	return withString(ctx, actorIDKey, actorID)
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, actorTypeKey), stringFrom(ctx, actorIDKey)
}

func withString(ctx context.Context, k key, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, k, value)
}

func stringFrom(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(k).(string)
	return value
}
