package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LockResourceUnit = "unit"
	LockResourceRoom = "pg_room"
	LockResourceBed  = "bed"
)

const (
	ConflictOccupied   = "occupied"
	ConflictLockWait   = "lock_timeout"
	ConflictSoftLocked = "being_edited"
	ConflictTenantBusy = "tenant_already_housed"
)

// OccupancyMetrics tracks contention and lifecycle outcomes of the
// occupancy engine.
type OccupancyMetrics struct {
	lockWait         *prometheus.HistogramVec
	conflicts        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	checkoutBlocked  *prometheus.CounterVec
	forcedCheckouts  prometheus.Counter
	noticesEligible  prometheus.Gauge
	lockWaitObserver map[string]prometheus.Observer
}

var (
	occupancyMetricsOnce sync.Once
	occupancyMetrics     *OccupancyMetrics
)

// Occupancy returns the process-wide occupancy metrics.
func Occupancy() *OccupancyMetrics {
	return OccupancyWithConfig(Config{})
}

func OccupancyWithConfig(cfg Config) *OccupancyMetrics {
	occupancyMetricsOnce.Do(func() {
		occupancyMetrics = NewOccupancyMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return occupancyMetrics
}

// NewOccupancyMetrics registers a fresh set of collectors on registerer.
func NewOccupancyMetrics(registerer prometheus.Registerer, cfg Config) *OccupancyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "kiraya_occupancy_lock_wait_seconds",
		Help:        "Time spent acquiring row locks on rentable resources.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"resource"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kiraya_occupancy_conflicts_total",
		Help:        "Occupancy writes rejected because of a competing writer.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kiraya_occupancy_transitions_total",
		Help:        "Successful occupancy lifecycle operations.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	checkoutBlocked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kiraya_checkout_blocked_total",
		Help:        "Checkouts refused, by blocker code.",
		ConstLabels: constLabels,
	}, []string{"code"})
	forced := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "kiraya_checkout_forced_total",
		Help:        "Checkouts that bypassed blockers with force.",
		ConstLabels: constLabels,
	})
	eligible := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "kiraya_notice_eligible_occupancies",
		Help:        "Active occupancies whose notice period has elapsed.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(lockWait, conflicts, transitions, checkoutBlocked, forced, eligible)

	return &OccupancyMetrics{
		lockWait:        lockWait,
		conflicts:       conflicts,
		transitions:     transitions,
		checkoutBlocked: checkoutBlocked,
		forcedCheckouts: forced,
		noticesEligible: eligible,
		lockWaitObserver: map[string]prometheus.Observer{
			LockResourceUnit: lockWait.WithLabelValues(LockResourceUnit),
			LockResourceRoom: lockWait.WithLabelValues(LockResourceRoom),
			LockResourceBed:  lockWait.WithLabelValues(LockResourceBed),
		},
	}
}

func (m *OccupancyMetrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(d.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *OccupancyMetrics) IncConflict(reason string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

func (m *OccupancyMetrics) IncTransition(operation string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation).Inc()
}

func (m *OccupancyMetrics) IncCheckoutBlocked(codes ...string) {
	if m == nil {
		return
	}
	for _, code := range codes {
		m.checkoutBlocked.WithLabelValues(code).Inc()
	}
}

func (m *OccupancyMetrics) IncForcedCheckout() {
	if m == nil {
		return
	}
	m.forcedCheckouts.Inc()
}

func (m *OccupancyMetrics) SetNoticesEligible(n int) {
	if m == nil {
		return
	}
	m.noticesEligible.Set(float64(n))
}
