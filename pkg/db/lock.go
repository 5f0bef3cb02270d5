package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SetLockTimeout bounds how long row locks taken later in tx may wait. It
// must run inside a transaction and returns a func that undoes the setting;
// call it before the transaction ends. Postgres scopes the value to the
// transaction already. MySQL only has a session variable, so the previous
// value is put back before the connection returns to the pool. sqlite has no
// row locks and is skipped.
func SetLockTimeout(tx *gorm.DB, wait time.Duration) (func() error, error) {
	noop := func() error { return nil }
	if wait <= 0 {
		return noop, nil
	}
	switch DialectName(tx) {
	case DialectPostgres:
		return noop, tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())).Error
	case DialectMySQL:
		seconds := int64(wait.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		var previous int64
		if err := tx.Raw("SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&previous).Error; err != nil {
			return noop, err
		}
		if previous == seconds {
			return noop, nil
		}
		if err := tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)).Error; err != nil {
			return noop, err
		}
		if previous <= 0 {
			previous = mysqlDefaultLockWait
		}
		return func() error {
			return tx.Exec(fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", previous)).Error
		}, nil
	default:
		return noop, nil
	}
}

// mysqlDefaultLockWait is the server default for innodb_lock_wait_timeout.
const mysqlDefaultLockWait = 50
