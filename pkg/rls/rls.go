// Package rls scopes a postgres transaction to one account so row level
// security policies on account_id apply.
package rls

import (
	"strconv"

	"gorm.io/gorm"
)

// WithAccount sets app.current_account_id for the rest of tx. Other dialects
// have no RLS and are left untouched.
func WithAccount(tx *gorm.DB, accountID int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_account_id', ?, true)", strconv.FormatInt(accountID, 10)).Error
}
