package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/auditcontext"
	"github.com/smallbiznis/kiraya/internal/callercontext"
	obscontext "github.com/smallbiznis/kiraya/internal/observability/context"
)

// APIKeyRequired resolves the bearer API key into the request's caller.
// The account a request acts on comes only from the key, never from the
// request itself.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		raw := parts[1]

		ctx := c.Request.Context()
		caller, cached := s.callers.GetCaller(raw)
		if !cached {
			resolved, err := s.accountSvc.ResolveAPIKey(ctx, raw)
			if err != nil {
				if errors.Is(err, accountdomain.ErrUnauthorized) {
					AbortWithError(c, ErrUnauthorized)
					return
				}
				AbortWithError(c, err)
				return
			}
			caller = resolved
			s.callers.SetCaller(raw, caller)
		}

		ctx = callercontext.WithCaller(ctx, caller)
		ctx = obscontext.WithAccountID(ctx, caller.AccountID.String())
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeMember), caller.MemberID.String())
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeMember), caller.MemberID.String())

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the caller's role against the casbin policy. Building
// scoping is enforced by the services themselves.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), caller, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) (accountdomain.Caller, bool) {
	return callercontext.CallerFromContext(c.Request.Context())
}

// mustCaller aborts with 401 when the request carries no caller.
func mustCaller(c *gin.Context) (accountdomain.Caller, bool) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return accountdomain.Caller{}, false
	}
	return caller, true
}
