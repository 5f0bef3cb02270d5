package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/config"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"github.com/smallbiznis/kiraya/internal/occupancy/domain"
	pkgdb "github.com/smallbiznis/kiraya/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LockKind string

const (
	LockOccupancy LockKind = "occupancy"
	LockUnit      LockKind = "unit"
	LockBed       LockKind = "bed"
	LockTenant    LockKind = "tenant"
)

var lockTables = map[LockKind]string{
	LockOccupancy: "occupancies",
	LockUnit:      "units",
	LockBed:       "beds",
	LockTenant:    "tenants",
}

type LockRef struct {
	Kind LockKind
	ID   snowflake.ID
}

func targetRef(t domain.Target) LockRef {
	if t.IsBed() {
		return LockRef{Kind: LockBed, ID: t.BedID}
	}
	return LockRef{Kind: LockUnit, ID: t.UnitID}
}

// Locker takes row locks in a stable order so that two transactions touching
// overlapping rows cannot deadlock on each other.
type Locker struct {
	log     *zap.Logger
	policy  *config.PolicyHolder
	metrics *metrics.OccupancyMetrics
}

func NewLocker(log *zap.Logger, policy *config.PolicyHolder, m *metrics.OccupancyMetrics) *Locker {
	return &Locker{log: log.Named("occupancy.locker"), policy: policy, metrics: m}
}

// WithLock locks every ref with SELECT ... FOR UPDATE, ascending by ID then
// kind, and runs fn inside the same transaction. A missing row fails with
// ErrNotFound; contention past the lock wait surfaces as ErrLockTimeout.
func (l *Locker) WithLock(ctx context.Context, tx *gorm.DB, refs []LockRef, fn func(tx *gorm.DB) error) error {
	ordered := orderRefs(refs)

	restore, err := pkgdb.SetLockTimeout(tx, l.policy.Get().LockWait)
	if err != nil {
		return l.mapErr(err)
	}
	defer func() {
		if err := restore(); err != nil {
			l.log.Warn("lock wait timeout not restored", zap.Error(err))
		}
	}()

	for _, ref := range ordered {
		table, ok := lockTables[ref.Kind]
		if !ok {
			return errors.New("unknown lock kind " + string(ref.Kind))
		}

		start := time.Now()
		var ids []int64
		err := tx.WithContext(ctx).
			Table(table).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", ref.ID).
			Scan(&ids).Error
		l.metrics.ObserveLockWait(string(ref.Kind), time.Since(start))
		if err != nil {
			return l.mapErr(err)
		}
		if len(ids) == 0 {
			if ref.Kind == LockTenant {
				return domain.ErrTenantNotFound
			}
			return domain.ErrNotFound
		}
	}

	return fn(tx)
}

func (l *Locker) mapErr(err error) error {
	if pkgdb.IsRetryableConflict(err) {
		l.metrics.IncConflict(metrics.ConflictLockWait)
		l.log.Warn("row lock not acquired", zap.Error(err))
		return domain.ErrLockTimeout
	}
	return err
}

func orderRefs(refs []LockRef) []LockRef {
	seen := make(map[LockRef]struct{}, len(refs))
	out := make([]LockRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == 0 {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
