package snapshotexport

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/kiraya/internal/config"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	stateRunning  = "in_notice_period"
	stateEligible = "eligible"
	stateOverdue  = "overdue"
)

// Exporter keeps the latest notice snapshot in a private registry and pushes
// it when a sink is configured.
type Exporter struct {
	log      *zap.Logger
	registry *prometheus.Registry
	pusher   Pusher

	notices    *prometheus.GaugeVec
	capturedAt prometheus.Gauge
}

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Pusher Pusher `optional:"true"`
}

func NewExporter(p Params) *Exporter {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": p.Cfg.AppName}
	e := &Exporter{
		log:      p.Log.Named("snapshotexport"),
		registry: registry,
		pusher:   p.Pusher,
		notices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "kiraya_snapshot_notice_occupancies",
			Help:        "Active occupancies with notice, per account and state, at the last sweep.",
			ConstLabels: constLabels,
		}, []string{"account_id", "state"}),
		capturedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "kiraya_snapshot_captured_timestamp_seconds",
			Help:        "Unix time of the last notice sweep.",
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(e.notices, e.capturedAt)
	return e
}

// Publish replaces the snapshot with summaries and pushes it. Push failures
// are returned; the in-memory snapshot is kept either way.
func (e *Exporter) Publish(ctx context.Context, at time.Time, summaries []occupancydomain.NoticeSummary) error {
	if e == nil {
		return nil
	}

	e.notices.Reset()
	for _, s := range summaries {
		account := s.AccountID.String()
		e.notices.WithLabelValues(account, stateRunning).Set(float64(s.Running))
		e.notices.WithLabelValues(account, stateEligible).Set(float64(s.Eligible))
		e.notices.WithLabelValues(account, stateOverdue).Set(float64(s.Overdue))
	}
	e.capturedAt.Set(float64(at.Unix()))

	if e.pusher == nil {
		return nil
	}
	if err := e.pusher.Push(ctx, e.registry); err != nil {
		e.log.Warn("snapshot push failed", zap.Error(err))
		return err
	}
	return nil
}

// Registry exposes the snapshot registry for inspection.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
