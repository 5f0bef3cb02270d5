package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const occupancyColumns = `id, account_id, building_id, tenant_id, unit_id, bed_id, rent, deposit,
	is_primary, is_active, start_date, end_date, notice_date, expected_checkout_date,
	notice_reason, notice_period_days, notes, metadata, created_at, updated_at`

var (
	pendingRentStatuses = []string{string(domain.RentPending), string(domain.RentPartial)}
	openIssueStatuses   = func() []string {
		out := make([]string, 0, len(domain.OpenIssueStatuses))
		for _, s := range domain.OpenIssueStatuses {
			out = append(out, string(s))
		}
		return out
	}()
)

func (r *repo) Insert(ctx context.Context, db *gorm.DB, o *domain.Occupancy) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO occupancies (`+occupancyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.AccountID,
		o.BuildingID,
		o.TenantID,
		o.UnitID,
		o.BedID,
		o.Rent,
		o.Deposit,
		o.IsPrimary,
		o.IsActive,
		o.StartDate,
		o.EndDate,
		o.NoticeDate,
		o.ExpectedCheckoutDate,
		o.NoticeReason,
		o.NoticePeriodDays,
		o.Notes,
		o.Metadata,
		o.CreatedAt,
		o.UpdatedAt,
	).Error
}

// Update writes every mutable column of o.
func (r *repo) Update(ctx context.Context, db *gorm.DB, o *domain.Occupancy) error {
	return db.WithContext(ctx).Exec(
		`UPDATE occupancies SET
		   building_id = ?, unit_id = ?, bed_id = ?, rent = ?, deposit = ?,
		   is_primary = ?, is_active = ?, end_date = ?, notice_date = ?,
		   expected_checkout_date = ?, notice_reason = ?, notice_period_days = ?,
		   updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		o.BuildingID,
		o.UnitID,
		o.BedID,
		o.Rent,
		o.Deposit,
		o.IsPrimary,
		o.IsActive,
		o.EndDate,
		o.NoticeDate,
		o.ExpectedCheckoutDate,
		o.NoticeReason,
		o.NoticePeriodDays,
		o.UpdatedAt,
		o.AccountID,
		o.ID,
	).Error
}

// SetRole touches only the primary flag and rent so notice columns written
// by a concurrent transaction survive a promotion or demotion.
func (r *repo) SetRole(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, isPrimary bool, rent int64, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE occupancies SET is_primary = ?, rent = ?, updated_at = ?
		 WHERE account_id = ? AND id = ? AND is_active`,
		isPrimary,
		rent,
		updatedAt,
		accountID,
		id,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Occupancy, error) {
	var o domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.QueryFilter) ([]domain.Occupancy, error) {
	if len(filter.BuildingIDs) == 0 {
		return []domain.Occupancy{}, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + occupancyColumns + ` FROM occupancies WHERE account_id = ? AND building_id IN ?`)
	args := []any{accountID, filter.BuildingIDs}
	if filter.TenantID != 0 {
		sb.WriteString(` AND tenant_id = ?`)
		args = append(args, filter.TenantID)
	}
	if filter.Active != nil {
		sb.WriteString(` AND is_active = ?`)
		args = append(args, *filter.Active)
	}
	sb.WriteString(` ORDER BY start_date DESC, id DESC`)

	var items []domain.Occupancy
	if err := db.WithContext(ctx).Raw(sb.String(), args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActiveByTenant(ctx context.Context, db *gorm.DB, accountID, tenantID snowflake.ID) (*domain.Occupancy, error) {
	var o domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies
		 WHERE account_id = ? AND tenant_id = ? AND is_active = ?
		 LIMIT 1`,
		accountID,
		tenantID,
		true,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

// ListActiveOnUnit returns a flat's active occupancies, earliest first.
func (r *repo) ListActiveOnUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]domain.Occupancy, error) {
	var items []domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies
		 WHERE unit_id = ? AND is_active = ?
		 ORDER BY start_date ASC, created_at ASC, id ASC`,
		unitID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, target domain.Target) (int64, error) {
	column := "unit_id"
	if target.IsBed() {
		column = "bed_id"
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM occupancies WHERE `+column+` = ? AND is_active = ?`,
		target.ID(),
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListActiveWithNotice(ctx context.Context, db *gorm.DB) ([]domain.Occupancy, error) {
	var items []domain.Occupancy
	err := db.WithContext(ctx).Raw(
		`SELECT `+occupancyColumns+` FROM occupancies
		 WHERE is_active = ? AND notice_date IS NOT NULL
		 ORDER BY account_id ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindTenant(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.TenantRef, error) {
	var tenant domain.TenantRef
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, name FROM tenants WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindUnit(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.UnitRef, error) {
	var unit domain.UnitRef
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, building_id, unit_type, expected_rent, status
		 FROM units WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&unit).Error
	if err != nil {
		return nil, err
	}
	if unit.ID == 0 {
		return nil, nil
	}
	return &unit, nil
}

func (r *repo) FindBed(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.BedRef, error) {
	var bed domain.BedRef
	err := db.WithContext(ctx).Raw(
		`SELECT bd.id, bd.account_id, r.unit_id, u.building_id, bd.status
		 FROM beds bd
		 JOIN pg_rooms r ON r.id = bd.room_id
		 JOIN units u ON u.id = r.unit_id
		 WHERE bd.account_id = ? AND bd.id = ?`,
		accountID,
		id,
	).Scan(&bed).Error
	if err != nil {
		return nil, err
	}
	if bed.ID == 0 {
		return nil, nil
	}
	return &bed, nil
}

func (r *repo) BuildingNoticePeriod(ctx context.Context, db *gorm.DB, accountID, buildingID snowflake.ID) (int, error) {
	var days int
	err := db.WithContext(ctx).Raw(
		`SELECT notice_period_days FROM buildings WHERE account_id = ? AND id = ?`,
		accountID,
		buildingID,
	).Scan(&days).Error
	return days, err
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, target domain.Target, status string, now time.Time) error {
	if target.IsBed() {
		return db.WithContext(ctx).Exec(
			`UPDATE beds SET status = ? WHERE id = ?`,
			status,
			target.BedID,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE units SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		target.UnitID,
	).Error
}

func (r *repo) CountPendingRent(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM rent_entries WHERE occupancy_id = ? AND status IN ?`,
		occupancyID,
		pendingRentStatuses,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountOpenIssues(ctx context.Context, db *gorm.DB, unitID, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM issues WHERE unit_id = ? AND tenant_id = ? AND status IN ?`,
		unitID,
		tenantID,
		openIssueStatuses,
	).Scan(&count).Error
	return count, err
}
