package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"

	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlQueryInterrupted = 3024
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if PGCode(err) == pgUniqueViolation || mysqlNumber(err) == mysqlDuplicateEntry {
		return true
	}

	// glebarez/sqlite surfaces constraint failures as plain text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsLockTimeout reports whether err means a row lock could not be acquired
// within the configured wait.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	switch PGCode(err) {
	case pgLockNotAvailable, pgQueryCanceled:
		return true
	}
	switch mysqlNumber(err) {
	case mysqlLockWaitTimeout, mysqlQueryInterrupted:
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}

func IsDeadlock(err error) bool {
	return PGCode(err) == pgDeadlockDetected || mysqlNumber(err) == mysqlDeadlock
}

func IsSerializationFailure(err error) bool {
	return PGCode(err) == pgSerializationFailure
}

// IsRetryableConflict reports lock contention the caller may retry.
func IsRetryableConflict(err error) bool {
	return IsLockTimeout(err) || IsDeadlock(err) || IsSerializationFailure(err)
}

// PGCode returns the SQLSTATE of a postgres error, or "".
func PGCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func mysqlNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}
