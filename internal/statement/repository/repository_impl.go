package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/statement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindTenantContact(ctx context.Context, db *gorm.DB, accountID, tenantID snowflake.ID) (*domain.TenantContact, error) {
	var rows []domain.TenantContact
	err := db.WithContext(ctx).Raw(
		`SELECT name, phone, email FROM tenants WHERE account_id = ? AND id = ?`,
		accountID,
		tenantID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindLocation(ctx context.Context, db *gorm.DB, accountID snowflake.ID, target occupancydomain.Target) (*domain.Location, error) {
	var rows []domain.Location
	var err error
	if target.IsBed() {
		err = db.WithContext(ctx).Raw(
			`SELECT b.name AS building_name, b.address AS building_address,
			        u.id AS unit_id, u.unit_number, r.room_number, bd.bed_number
			 FROM beds bd
			 JOIN pg_rooms r ON r.id = bd.room_id
			 JOIN units u ON u.id = r.unit_id
			 JOIN buildings b ON b.id = u.building_id
			 WHERE bd.account_id = ? AND bd.id = ?`,
			accountID,
			target.BedID,
		).Scan(&rows).Error
	} else {
		err = db.WithContext(ctx).Raw(
			`SELECT b.name AS building_name, b.address AS building_address,
			        u.id AS unit_id, u.unit_number
			 FROM units u
			 JOIN buildings b ON b.id = u.building_id
			 WHERE u.account_id = ? AND u.id = ?`,
			accountID,
			target.UnitID,
		).Scan(&rows).Error
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ListRentEntries(ctx context.Context, db *gorm.DB, occupancyID snowflake.ID) ([]occupancydomain.RentEntry, error) {
	var entries []occupancydomain.RentEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, occupancy_id, month, amount, paid_amount, status, created_at
		 FROM rent_entries WHERE occupancy_id = ?
		 ORDER BY month ASC, id ASC`,
		occupancyID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) CountOpenIssues(ctx context.Context, db *gorm.DB, unitID, tenantID snowflake.ID) (int64, error) {
	statuses := make([]string, 0, len(occupancydomain.OpenIssueStatuses))
	for _, s := range occupancydomain.OpenIssueStatuses {
		statuses = append(statuses, string(s))
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM issues WHERE unit_id = ? AND tenant_id = ? AND status IN ?`,
		unitID,
		tenantID,
		statuses,
	).Scan(&count).Error
	return count, err
}
