package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kiraya/internal/access/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// resourceQueries select the ids of a resource kind whose owning building is
// in a given set, always joined back to the account.
var resourceQueries = map[domain.ResourceKind]string{
	domain.KindBuilding: `SELECT b.id FROM buildings b
		WHERE b.account_id = ? AND b.id IN ?`,
	domain.KindUnit: `SELECT u.id FROM units u
		WHERE u.account_id = ? AND u.building_id IN ?`,
	domain.KindPGRoom: `SELECT r.id FROM pg_rooms r
		JOIN units u ON u.id = r.unit_id
		WHERE r.account_id = ? AND u.building_id IN ?`,
	domain.KindBed: `SELECT bd.id FROM beds bd
		JOIN pg_rooms r ON r.id = bd.room_id
		JOIN units u ON u.id = r.unit_id
		WHERE bd.account_id = ? AND u.building_id IN ?`,
	domain.KindOccupancy: `SELECT o.id FROM occupancies o
		WHERE o.account_id = ? AND o.building_id IN ?`,
	domain.KindRent: `SELECT re.id FROM rent_entries re
		JOIN occupancies o ON o.id = re.occupancy_id
		WHERE re.account_id = ? AND o.building_id IN ?`,
	domain.KindIssue: `SELECT i.id FROM issues i
		JOIN units u ON u.id = i.unit_id
		WHERE i.account_id = ? AND u.building_id IN ?`,
}

var ownerQueries = map[domain.ResourceKind]string{
	domain.KindBuilding: `SELECT b.account_id, b.id AS building_id FROM buildings b WHERE b.id = ?`,
	domain.KindUnit:     `SELECT u.account_id, u.building_id FROM units u WHERE u.id = ?`,
	domain.KindPGRoom: `SELECT r.account_id, u.building_id FROM pg_rooms r
		JOIN units u ON u.id = r.unit_id WHERE r.id = ?`,
	domain.KindBed: `SELECT bd.account_id, u.building_id FROM beds bd
		JOIN pg_rooms r ON r.id = bd.room_id
		JOIN units u ON u.id = r.unit_id WHERE bd.id = ?`,
	domain.KindOccupancy: `SELECT o.account_id, o.building_id FROM occupancies o WHERE o.id = ?`,
	domain.KindRent: `SELECT re.account_id, o.building_id FROM rent_entries re
		JOIN occupancies o ON o.id = re.occupancy_id WHERE re.id = ?`,
	domain.KindIssue: `SELECT i.account_id, u.building_id FROM issues i
		JOIN units u ON u.id = i.unit_id WHERE i.id = ?`,
}

func (r *repo) AccountBuildingIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM buildings WHERE account_id = ? ORDER BY id ASC`,
		accountID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}

func (r *repo) GrantedBuildingIDs(ctx context.Context, db *gorm.DB, accountID, managerID snowflake.ID) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT g.building_id FROM building_access_grants g
		 JOIN buildings b ON b.id = g.building_id
		 WHERE g.account_id = ? AND g.manager_id = ? AND b.account_id = ?
		 ORDER BY g.building_id ASC`,
		accountID,
		managerID,
		accountID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}

func (r *repo) HasGrant(ctx context.Context, db *gorm.DB, accountID, managerID, buildingID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM building_access_grants g
		 JOIN buildings b ON b.id = g.building_id
		 WHERE g.account_id = ? AND g.manager_id = ? AND g.building_id = ? AND b.account_id = ?`,
		accountID,
		managerID,
		buildingID,
		accountID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ResourceIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind domain.ResourceKind, buildingIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(buildingIDs) == 0 {
		return []snowflake.ID{}, nil
	}
	query, ok := resourceQueries[kind]
	if !ok {
		return nil, domain.ErrInvalidKind
	}

	var ids []int64
	err := db.WithContext(ctx).Raw(query+" ORDER BY 1 ASC", accountID, buildingIDs).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", kind, err)
	}
	return toIDs(ids), nil
}

func (r *repo) OwnerOf(ctx context.Context, db *gorm.DB, kind domain.ResourceKind, id snowflake.ID) (*domain.Owner, error) {
	query, ok := ownerQueries[kind]
	if !ok {
		return nil, domain.ErrInvalidKind
	}

	var row struct {
		AccountID  int64
		BuildingID int64
	}
	if err := db.WithContext(ctx).Raw(query, id).Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("resolve %s owner: %w", kind, err)
	}
	if row.AccountID == 0 || row.BuildingID == 0 {
		return nil, nil
	}
	return &domain.Owner{
		AccountID:  snowflake.ID(row.AccountID),
		BuildingID: snowflake.ID(row.BuildingID),
	}, nil
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID) (*domain.MemberRef, error) {
	var row struct {
		ID        int64
		AccountID int64
		Role      string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, role FROM account_members WHERE id = ?`,
		memberID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.MemberRef{
		ID:        snowflake.ID(row.ID),
		AccountID: snowflake.ID(row.AccountID),
		Role:      row.Role,
	}, nil
}

func (r *repo) InsertGrant(ctx context.Context, db *gorm.DB, grant *domain.Grant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO building_access_grants (id, account_id, manager_id, building_id, granted_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		grant.ID,
		grant.AccountID,
		grant.ManagerID,
		grant.BuildingID,
		grant.GrantedBy,
		grant.CreatedAt,
	).Error
}

func (r *repo) DeleteGrant(ctx context.Context, db *gorm.DB, accountID, managerID, buildingID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM building_access_grants
		 WHERE account_id = ? AND manager_id = ? AND building_id = ?`,
		accountID,
		managerID,
		buildingID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListGrants(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.GrantFilter) ([]domain.Grant, error) {
	clauses := []string{"account_id = ?"}
	args := []any{accountID}
	if filter.ManagerID != 0 {
		clauses = append(clauses, "manager_id = ?")
		args = append(args, filter.ManagerID)
	}
	if filter.BuildingID != 0 {
		clauses = append(clauses, "building_id = ?")
		args = append(args, filter.BuildingID)
	}

	var grants []domain.Grant
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, manager_id, building_id, granted_by, created_at
		 FROM building_access_grants WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY created_at ASC, id ASC`,
		args...,
	).Scan(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func toIDs(raw []int64) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		out = append(out, snowflake.ID(id))
	}
	return out
}
