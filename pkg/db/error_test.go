package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: occupancies.tenant_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestRetryableConflictClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "pg lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "pg deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "pg serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "mysql lock wait", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableConflict(tc.err))
		})
	}
}
