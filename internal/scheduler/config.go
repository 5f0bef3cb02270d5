package scheduler

import (
	"time"

	"github.com/smallbiznis/kiraya/internal/config"
)

const JobNoticeSweep = "notice_sweep"

// Config controls scheduler intervals. RunInterval falls back to the policy
// sweep interval, re-read on every tick.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 30 * time.Second,
		LockTTL:    2 * time.Minute,
	}
}

func ProvideConfig() Config {
	return DefaultConfig()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func (c Config) interval(policy *config.PolicyHolder) time.Duration {
	if c.RunInterval > 0 {
		return c.RunInterval
	}
	if policy != nil {
		if d := policy.Get().SweepInterval; d > 0 {
			return d
		}
	}
	return config.DefaultPolicy().SweepInterval
}
