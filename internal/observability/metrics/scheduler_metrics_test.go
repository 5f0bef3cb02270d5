package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "deadlock", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), want: JobReasonDeadlock},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "kiraya", Environment: "test"})

	m.AddBatchProcessed("notice_sweep", "occupancies", 3)
	m.AddBatchProcessed("notice_sweep", "occupancies", 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.batchProcessed.WithLabelValues("notice_sweep", "occupancies")))
}

func TestOccupancyMetricsCountsConflictsAndBlockers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOccupancyMetrics(reg, Config{Environment: "test"})

	m.IncConflict(ConflictOccupied)
	m.IncConflict(ConflictOccupied)
	m.IncCheckoutBlocked("pending_rent", "open_issues")
	m.IncForcedCheckout()
	m.SetNoticesEligible(4)
	m.ObserveLockWait(LockResourceBed, 20*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.conflicts.WithLabelValues(ConflictOccupied)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.checkoutBlocked.WithLabelValues("open_issues")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.forcedCheckouts))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.noticesEligible))
	// Every resource child exists up front; only the bed one has a sample.
	assert.Equal(t, 3, testutil.CollectAndCount(m.lockWait))
	assert.Equal(t, map[string]uint64{
		LockResourceUnit: 0,
		LockResourceRoom: 0,
		LockResourceBed:  1,
	}, lockWaitSamples(t, reg))
}

func lockWaitSamples(t *testing.T, reg *prometheus.Registry) map[string]uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]uint64{}
	for _, family := range families {
		if family.GetName() != "kiraya_occupancy_lock_wait_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == "resource" {
					out[pair.GetValue()] = metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return out
}

func TestHTTPMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newHTTPMetrics(prometheus.NewRegistry(), Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/occupancies/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/occupancies/99", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/api/occupancies/:id", http.MethodGet, "200")))
}
