package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/clock"
	"github.com/smallbiznis/kiraya/internal/config"
	obscontext "github.com/smallbiznis/kiraya/internal/observability/context"
	obsmetrics "github.com/smallbiznis/kiraya/internal/observability/metrics"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/ratelimit"
	"github.com/smallbiznis/kiraya/internal/snapshotexport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	OccupancySvc     occupancydomain.Service
	Limiter          *ratelimit.WriteLimiter      `optional:"true"`
	Exporter         *snapshotexport.Exporter     `optional:"true"`
	Policy           *config.PolicyHolder         `optional:"true"`
	OccupancyMetrics *obsmetrics.OccupancyMetrics `optional:"true"`
	SchedulerMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config           Config                       `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	occupancySvc occupancydomain.Service
	limiter      *ratelimit.WriteLimiter
	exporter     *snapshotexport.Exporter
	policy       *config.PolicyHolder
	occMetrics   *obsmetrics.OccupancyMetrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.OccupancySvc == nil {
		return nil, ErrInvalidConfig
	}
	schedMetrics := p.SchedulerMetrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		occupancySvc: p.OccupancySvc,
		limiter:      p.Limiter,
		exporter:     p.Exporter,
		policy:       p.Policy,
		occMetrics:   p.OccupancyMetrics,
		schedMetrics: schedMetrics,
	}, nil
}

// runJob runs fn under a timeout and a cluster-wide job lock. A run skipped
// because another replica holds the lock is not an error.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", run.runID))

	token, acquired, err := s.limiter.TryLockJob(ctx, name, s.cfg.LockTTL)
	if err != nil {
		log.Warn("job lock unavailable, running unlocked", zap.Error(err))
		acquired = true
	}
	if !acquired {
		log.Debug("job held by another replica")
		return nil
	}
	if token != "" {
		defer func() {
			if err := s.limiter.ReleaseJob(context.Background(), name, token); err != nil {
				log.Warn("failed to release job lock", zap.Error(err))
			}
		}()
	}

	s.logJobStart(ctx, run)
	s.schedMetrics.IncJobRun(name)

	err = fn(ctx, run)
	s.schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.schedMetrics.IncJobTimeout(name)
	}
	s.schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(JobNoticeSweep) {
		err = errors.Join(err, s.runJob(parent, JobNoticeSweep, s.NoticeSweepJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.interval(s.policy)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := time.Now()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			s.schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		if next := s.cfg.interval(s.policy); next != interval {
			s.log.Info("sweep interval changed", zap.Duration("from", interval), zap.Duration("to", next))
			interval = next
			ticker.Reset(interval)
		}
		nextRun = time.Now().Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// NoticeSweepJob counts notice states per account, publishes the eligible
// gauge and the snapshot, and logs every overdue occupancy.
func (s *Scheduler) NoticeSweepJob(ctx context.Context, run *jobRun) error {
	summaries, overdue, err := s.occupancySvc.SweepNotices(ctx)
	if err != nil {
		return err
	}

	eligible := 0
	processed := 0
	for _, summary := range summaries {
		eligible += summary.Eligible
		processed += summary.Running + summary.Eligible
	}
	s.occMetrics.SetNoticesEligible(eligible)
	run.AddProcessed(processed)
	s.schedMetrics.AddBatchProcessed(JobNoticeSweep, "occupancy", processed)

	today := clock.Today(s.clock)
	for _, view := range overdue {
		s.logOverdue(ctx, today, view)
	}

	if err := s.exporter.Publish(ctx, s.clock.Now(), summaries); err != nil {
		run.IncError()
	}
	return nil
}

func (s *Scheduler) logOverdue(ctx context.Context, today time.Time, view occupancydomain.OccupancyView) {
	ctx = obscontext.WithAccountID(ctx, view.AccountID.String())
	fields := []zap.Field{
		zap.String("occupancy_id", view.ID.String()),
		zap.String("building_id", view.BuildingID.String()),
		zap.String("tenant_id", view.TenantID.String()),
	}
	if view.ExpectedCheckoutDate != nil {
		expected := clock.DateOf(*view.ExpectedCheckoutDate)
		fields = append(fields,
			zap.String("expected_checkout_date", expected.Format("2006-01-02")),
			zap.Int("days_overdue", int(today.Sub(expected)/(24*time.Hour))),
		)
	}
	s.logger(ctx).Warn("occupancy.checkout_overdue", fields...)
}
