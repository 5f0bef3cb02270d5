package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/kiraya/internal/observability/context"
	obslogger "github.com/smallbiznis/kiraya/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job for its closing log line.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	processed int
	failures  int
}

func (r *jobRun) AddProcessed(n int) {
	if n > 0 {
		r.processed += n
	}
}

func (r *jobRun) IncError() { r.failures++ }

func (s *Scheduler) newJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{job: job, runID: s.genID.Generate().String(), startedAt: s.clock.Now()}
	return obscontext.WithActor(ctx, "system", "scheduler"), run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Debug("scheduler.job.start", zap.String("job", run.job), zap.String("run_id", run.runID))
}

// logJobFinish logs at warn level when any step of the run failed.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	level := zap.InfoLevel
	if run.failures > 0 {
		level = zap.WarnLevel
	}
	if ce := s.logger(ctx).Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.String("job", run.job),
			zap.String("run_id", run.runID),
			zap.Duration("duration", s.clock.Now().Sub(run.startedAt)),
			zap.Int("processed_count", run.processed),
			zap.Int("error_count", run.failures),
		)
	}
}
