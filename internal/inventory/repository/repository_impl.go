package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const buildingColumns = `id, account_id, name, slug, address, total_floors, notice_period_days, created_at, updated_at`

const unitColumns = `id, account_id, building_id, unit_number, unit_type, bhk_type, expected_rent, deposit, status, created_at, updated_at`

func (r *repo) InsertBuilding(ctx context.Context, db *gorm.DB, building *domain.Building) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO buildings (`+buildingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		building.ID,
		building.AccountID,
		building.Name,
		building.Slug,
		building.Address,
		building.TotalFloors,
		building.NoticePeriodDays,
		building.CreatedAt,
		building.UpdatedAt,
	).Error
}

func (r *repo) FindBuilding(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Building, error) {
	var building domain.Building
	err := db.WithContext(ctx).Raw(
		`SELECT `+buildingColumns+` FROM buildings WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&building).Error
	if err != nil {
		return nil, err
	}
	if building.ID == 0 {
		return nil, nil
	}
	return &building, nil
}

func (r *repo) ListBuildings(ctx context.Context, db *gorm.DB, accountID snowflake.ID, ids []snowflake.ID) ([]domain.Building, error) {
	if len(ids) == 0 {
		return []domain.Building{}, nil
	}
	var buildings []domain.Building
	err := db.WithContext(ctx).Raw(
		`SELECT `+buildingColumns+` FROM buildings
		 WHERE account_id = ? AND id IN ?
		 ORDER BY name ASC, id ASC`,
		accountID,
		ids,
	).Scan(&buildings).Error
	if err != nil {
		return nil, err
	}
	return buildings, nil
}

func (r *repo) UnitCounts(ctx context.Context, db *gorm.DB, accountID snowflake.ID, buildingIDs []snowflake.ID) ([]domain.UnitCounts, error) {
	if len(buildingIDs) == 0 {
		return []domain.UnitCounts{}, nil
	}
	var counts []domain.UnitCounts
	err := db.WithContext(ctx).Raw(
		`SELECT building_id,
		        COUNT(1) AS total,
		        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS occupied
		 FROM units
		 WHERE account_id = ? AND building_id IN ?
		 GROUP BY building_id`,
		domain.StatusOccupied,
		accountID,
		buildingIDs,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repo) UpdateNoticePeriod(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, days int, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE buildings SET notice_period_days = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
		days,
		updatedAt,
		accountID,
		id,
	).Error
}

func (r *repo) InsertUnit(ctx context.Context, db *gorm.DB, unit *domain.Unit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO units (`+unitColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		unit.ID,
		unit.AccountID,
		unit.BuildingID,
		unit.UnitNumber,
		unit.UnitType,
		unit.BHKType,
		unit.ExpectedRent,
		unit.Deposit,
		unit.Status,
		unit.CreatedAt,
		unit.UpdatedAt,
	).Error
}

func (r *repo) FindUnit(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Unit, error) {
	var unit domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM units WHERE account_id = ? AND id = ?`,
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

func (r *repo) ListUnits(ctx context.Context, db *gorm.DB, accountID, buildingID snowflake.ID) ([]domain.Unit, error) {
	var units []domain.Unit
	err := db.WithContext(ctx).Raw(
		`SELECT `+unitColumns+` FROM units
		 WHERE account_id = ? AND building_id = ?
		 ORDER BY unit_number ASC`,
		accountID,
		buildingID,
	).Scan(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repo) InsertRoom(ctx context.Context, db *gorm.DB, room *domain.PGRoom) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pg_rooms (id, account_id, unit_id, room_number, sharing_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID,
		room.AccountID,
		room.UnitID,
		room.RoomNumber,
		room.SharingCount,
		room.CreatedAt,
	).Error
}

func (r *repo) FindRoom(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.PGRoom, error) {
	var room domain.PGRoom
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, unit_id, room_number, sharing_count, created_at
		 FROM pg_rooms WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&room).Error
	if err != nil {
		return nil, err
	}
	if room.ID == 0 {
		return nil, nil
	}
	return &room, nil
}

func (r *repo) CountBeds(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM beds WHERE room_id = ?`, roomID).Scan(&count).Error
	return count, err
}

func (r *repo) InsertBed(ctx context.Context, db *gorm.DB, bed *domain.Bed) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO beds (id, account_id, room_id, bed_number, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bed.ID,
		bed.AccountID,
		bed.RoomID,
		bed.BedNumber,
		bed.Status,
		bed.CreatedAt,
	).Error
}

func (r *repo) FindBed(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Bed, error) {
	var bed domain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, room_id, bed_number, status, created_at
		 FROM beds WHERE account_id = ? AND id = ?`,
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

func (r *repo) ListBeds(ctx context.Context, db *gorm.DB, accountID, roomID snowflake.ID) ([]domain.Bed, error) {
	var beds []domain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, room_id, bed_number, status, created_at
		 FROM beds WHERE account_id = ? AND room_id = ?
		 ORDER BY bed_number ASC`,
		accountID,
		roomID,
	).Scan(&beds).Error
	if err != nil {
		return nil, err
	}
	return beds, nil
}
