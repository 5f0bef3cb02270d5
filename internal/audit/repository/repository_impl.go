package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/kiraya/internal/audit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, account_id, building_id, actor_type, actor_id, action,
			target_type, target_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.BuildingID, entry.ActorType, entry.ActorID, entry.Action,
		entry.TargetType, entry.TargetID, entry.Metadata, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	).Error
}

// List returns newest first. It fetches Limit+1 rows so the caller can tell
// whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	if filter.BuildingIDs != nil && len(filter.BuildingIDs) == 0 {
		return []*domain.AuditLog{}, nil
	}

	conds := []clause.Expression{clause.Eq{Column: "account_id", Value: filter.AccountID}}
	if filter.BuildingIDs != nil {
		conds = append(conds, clause.IN{Column: "building_id", Values: idValues(filter)})
	}
	for column, value := range map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			conds = append(conds, clause.Eq{Column: column, Value: value})
		}
	}
	if filter.StartAt != nil {
		conds = append(conds, clause.Gte{Column: "created_at", Value: filter.StartAt.UTC()})
	}
	if filter.EndAt != nil {
		conds = append(conds, clause.Lte{Column: "created_at", Value: filter.EndAt.UTC()})
	}
	if c := filter.Cursor; c != nil {
		conds = append(conds, clause.Or(
			clause.Lt{Column: "created_at", Value: c.CreatedAt},
			clause.And(
				clause.Eq{Column: "created_at", Value: c.CreatedAt},
				clause.Lt{Column: "id", Value: c.ID},
			),
		))
	}

	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).Clauses(clause.Where{Exprs: conds}).
		Order("created_at DESC, id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func idValues(filter domain.ListFilter) []any {
	values := make([]any, len(filter.BuildingIDs))
	for i, id := range filter.BuildingIDs {
		values[i] = id
	}
	return values
}
