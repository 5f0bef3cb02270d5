package option

import (
	"gorm.io/gorm"
)

// QueryOption customizes a generic repository query.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryFunc func(*gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithLimit(limit int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOrder(order string) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	})
}

// WithWhere adds a raw condition, e.g. WithWhere("id < ?", cursor).
func WithWhere(query string, args ...any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// WithIDs restricts the query to the given primary keys. An empty list
// matches nothing.
func WithIDs[T any](ids []T) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if len(ids) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where("id IN ?", ids)
	})
}
