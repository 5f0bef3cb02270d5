package domain

import (
	"errors"
	"strings"

	"github.com/smallbiznis/kiraya/internal/softlock"
)

var (
	ErrNotFound                = errors.New("occupancy_not_found")
	ErrTenantNotFound          = errors.New("tenant_not_found")
	ErrResourceAlreadyOccupied = errors.New("resource_already_occupied")
	ErrLockTimeout             = errors.New("lock_timeout")
	ErrTenantAlreadyPlaced     = errors.New("tenant_already_placed")
	ErrRentRequired            = errors.New("rent_required")
	ErrInvalidAssignmentTarget = errors.New("invalid_assignment_target")
	ErrInvalidRent             = errors.New("invalid_rent")
	ErrInvalidDeposit          = errors.New("invalid_deposit")
	ErrInvalidDate             = errors.New("invalid_date")
	ErrInvalidNoticeState      = errors.New("invalid_notice_state")
	ErrNotFlat                 = errors.New("unit_not_flat")
	ErrAlreadyInactive         = errors.New("occupancy_already_inactive")
	ErrNoticeAlreadyGiven      = errors.New("notice_already_given")
	ErrNoNotice                = errors.New("no_notice")

	ErrOutstandingDuesOrIssues  = errors.New("outstanding_dues_or_issues")
	ErrNoticePeriodNotSatisfied = errors.New("notice_period_not_satisfied")

	ErrResourceBeingEdited = softlock.ErrResourceBeingEdited
)

// CheckoutBlockedError lists every reason a vacate was refused.
type CheckoutBlockedError struct {
	Blockers []Blocker
}

func (e *CheckoutBlockedError) Error() string {
	return "checkout_blocked: " + strings.Join(e.Codes(), ",")
}

func (e *CheckoutBlockedError) Codes() []string {
	codes := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		codes = append(codes, b.Code)
	}
	return codes
}

func (e *CheckoutBlockedError) Is(target error) bool {
	for _, b := range e.Blockers {
		switch b.Code {
		case BlockerPendingRent, BlockerOpenIssues:
			if target == ErrOutstandingDuesOrIssues {
				return true
			}
		case BlockerNoticeNotGiven, BlockerNoticePeriodRunning:
			if target == ErrNoticePeriodNotSatisfied {
				return true
			}
		}
	}
	return false
}
