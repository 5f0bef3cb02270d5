package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyWriteAccount = "ratelimit:write:account:%s"
	keyJobLock      = "lock:job:%s"
)

type Params struct {
	fx.In

	Client  *redis.Client `optional:"true"`
	Policy  *config.PolicyHolder
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// WriteLimiter throttles mutating requests per account. It is disabled, and
// allows everything, when redis is not configured.
type WriteLimiter struct {
	bucket  *bucket
	jobs    *jobLock
	policy  *config.PolicyHolder
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewWriteLimiter(p Params) *WriteLimiter {
	return &WriteLimiter{
		bucket:  newBucket(p.Client),
		jobs:    newJobLock(p.Client),
		policy:  p.Policy,
		log:     p.Log.Named("ratelimit"),
		metrics: p.Metrics,
	}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowAccount consumes one write token for accountID. Redis failures fail
// open so an outage of the limiter does not take writes down with it.
func (l *WriteLimiter) AllowAccount(ctx context.Context, accountID, endpoint string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	policy := l.policy.Get()
	key := fmt.Sprintf(keyWriteAccount, strings.TrimSpace(accountID))

	result, err := l.bucket.Take(ctx, key, policy.WriteRatePerSecond, policy.WriteBurst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.Error(err))
		return Decision{Allowed: true}, nil
	}
	if result.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, accountID, endpoint)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, accountID, endpoint, "account_write_burst")
	}
	return result, nil
}

// TryLockJob takes a cluster-wide lock for a background job run. Without
// redis every replica runs the job.
func (l *WriteLimiter) TryLockJob(ctx context.Context, job string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.jobs == nil {
		return "", true, nil
	}
	return l.jobs.Acquire(ctx, fmt.Sprintf(keyJobLock, strings.TrimSpace(job)), ttl)
}

func (l *WriteLimiter) ReleaseJob(ctx context.Context, job, token string) error {
	if l == nil || l.jobs == nil {
		return nil
	}
	return l.jobs.Release(ctx, fmt.Sprintf(keyJobLock, strings.TrimSpace(job)), token)
}
