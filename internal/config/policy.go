package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds operational knobs for the occupancy engine that operators may
// tune without a restart.
type Policy struct {
	DefaultNoticePeriodDays int           `mapstructure:"defaultNoticePeriodDays"`
	LockWait                time.Duration `mapstructure:"lockWait"`
	SoftLockTTL             time.Duration `mapstructure:"softLockTTL"`
	WriteRatePerSecond      float64       `mapstructure:"writeRatePerSecond"`
	WriteBurst              int           `mapstructure:"writeBurst"`
	SweepInterval           time.Duration `mapstructure:"sweepInterval"`
}

const (
	MinNoticePeriodDays = 0
	MaxNoticePeriodDays = 365
)

func DefaultPolicy() Policy {
	return Policy{
		DefaultNoticePeriodDays: 30,
		LockWait:                5 * time.Second,
		SoftLockTTL:             5 * time.Minute,
		WriteRatePerSecond:      10,
		WriteBurst:              20,
		SweepInterval:           15 * time.Minute,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

// NewPolicyHolder reads occupancy.yml from the configured paths, falling back
// to defaults, and keeps watching the file for changes.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("occupancy")
	v.SetConfigType("yml")
	for _, path := range cfg.PolicyPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("KIRAYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("occupancy.defaultNoticePeriodDays", defaults.DefaultNoticePeriodDays)
	v.SetDefault("occupancy.lockWait", defaults.LockWait)
	v.SetDefault("occupancy.softLockTTL", defaults.SoftLockTTL)
	v.SetDefault("occupancy.writeRatePerSecond", defaults.WriteRatePerSecond)
	v.SetDefault("occupancy.writeBurst", defaults.WriteBurst)
	v.SetDefault("occupancy.sweepInterval", defaults.SweepInterval)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy Policy
	if err := v.UnmarshalKey("occupancy", &policy); err != nil {
		return nil, err
	}
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("occupancy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := ValidatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	p, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return p
}

func ValidatePolicy(p Policy) error {
	if p.DefaultNoticePeriodDays < MinNoticePeriodDays || p.DefaultNoticePeriodDays > MaxNoticePeriodDays {
		return errors.New("occupancy.defaultNoticePeriodDays must be within 0..365")
	}
	if p.LockWait <= 0 {
		return errors.New("occupancy.lockWait must be positive")
	}
	if p.SoftLockTTL <= 0 {
		return errors.New("occupancy.softLockTTL must be positive")
	}
	if p.WriteRatePerSecond <= 0 || p.WriteBurst <= 0 {
		return errors.New("occupancy write rate limit must be positive")
	}
	if p.SweepInterval <= 0 {
		return errors.New("occupancy.sweepInterval must be positive")
	}
	return nil
}

// ClampNoticePeriodDays bounds a per-building notice period.
func ClampNoticePeriodDays(days int) int {
	if days < MinNoticePeriodDays {
		return MinNoticePeriodDays
	}
	if days > MaxNoticePeriodDays {
		return MaxNoticePeriodDays
	}
	return days
}
