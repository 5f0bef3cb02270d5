package cache

import (
	"strings"
	"time"

	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
)

const defaultCallerTTL = 15 * time.Second

// CallerCache remembers API key resolutions for a short time so every
// request does not hit api_keys. Keys are stored by their sha256, never raw.
type CallerCache interface {
	GetCaller(rawKey string) (accountdomain.Caller, bool)
	SetCaller(rawKey string, caller accountdomain.Caller)
}

type callerCache struct {
	callers Cache[string, accountdomain.Caller]
	ttl     time.Duration
}

func NewCallerCache() CallerCache {
	return &callerCache{
		callers: NewTTLCache[string, accountdomain.Caller](),
		ttl:     defaultCallerTTL,
	}
}

func (c *callerCache) GetCaller(rawKey string) (accountdomain.Caller, bool) {
	key := cacheKey(rawKey)
	if key == "" {
		return accountdomain.Caller{}, false
	}
	return c.callers.Get(key)
}

func (c *callerCache) SetCaller(rawKey string, caller accountdomain.Caller) {
	key := cacheKey(rawKey)
	if key == "" || caller.AccountID == 0 {
		return
	}
	c.callers.Set(key, caller, c.ttl)
}

func cacheKey(rawKey string) string {
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return ""
	}
	return accountdomain.HashAPIKey(trimmed)
}
