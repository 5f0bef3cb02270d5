package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kiraya/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonAccountWrite = "account-write"

// WriteRateLimit spends one token of the caller's account write bucket on
// every mutating request. It must run after APIKeyRequired.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() || !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		caller, ok := callerFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		result, err := s.writeLimiter.AllowAccount(ctx, caller.AccountID.String(), endpoint)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if result.Allowed {
			c.Next()
			return
		}

		logger.FromContext(ctx).Warn("write rate limit exceeded",
			zap.String("reason", rateLimitReasonAccountWrite),
			zap.String("endpoint", endpoint),
		)
		retryAfter := 1
		if result.RetryAfter > 0 {
			retryAfter = int(math.Ceil(result.RetryAfter.Seconds()))
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-Rate-Limited-Reason", rateLimitReasonAccountWrite)
		AbortWithError(c, ErrRateLimited)
	}
}

func isWriteMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
