package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	auditdomain "github.com/smallbiznis/kiraya/internal/audit/domain"
	"github.com/smallbiznis/kiraya/internal/authorization"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
	"github.com/smallbiznis/kiraya/internal/softlock"
	tenantdomain "github.com/smallbiznis/kiraya/internal/tenant/domain"
	"github.com/smallbiznis/kiraya/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string                    `json:"type"`
	Code      string                    `json:"code,omitempty"`
	Message   string                    `json:"message"`
	Retryable bool                      `json:"retryable"`
	Errors    []ValidationError         `json:"errors,omitempty"`
	Blockers  []occupancydomain.Blocker `json:"blockers,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// conflictMessages lists the 409 errors. Retryable ones come from contention
// on a resource and usually succeed when the client tries again.
var conflictMessages = []struct {
	err       error
	message   string
	retryable bool
}{
	{occupancydomain.ErrResourceAlreadyOccupied, "this unit or bed is already occupied, please retry", true},
	{softlock.ErrResourceBeingEdited, "another member is editing this resource, please retry shortly", true},
	{occupancydomain.ErrLockTimeout, "the resource is busy, please retry", true},
	{occupancydomain.ErrTenantAlreadyPlaced, "tenant already has an active occupancy", false},
	{occupancydomain.ErrAlreadyInactive, "occupancy is already vacated", false},
	{occupancydomain.ErrNoticeAlreadyGiven, "notice has already been given", false},
	{occupancydomain.ErrNoNotice, "occupancy has no notice to cancel", false},
	{accessdomain.ErrGrantExists, "manager already has access to this building", false},
	{accessdomain.ErrGranteeIsOwner, "owners already have access to every building", false},
	{accountdomain.ErrAccountExists, "account already exists", false},
	{accountdomain.ErrMemberExists, "a member with this email already exists", false},
	{inventorydomain.ErrBuildingExists, "a building with this name already exists", false},
	{inventorydomain.ErrUnitExists, "a unit with this number already exists in the building", false},
	{inventorydomain.ErrRoomExists, "a room with this number already exists in the unit", false},
	{inventorydomain.ErrBedExists, "a bed with this number already exists in the room", false},
	{inventorydomain.ErrRoomFull, "room already has as many beds as its sharing count", false},
	{softlock.ErrSessionNotHeld, "you do not hold an editing session on this resource", false},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var blocked *occupancydomain.CheckoutBlockedError
	if errors.As(err, &blocked) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:     "checkout_blocked",
			Code:     "checkout_blocked",
			Message:  "checkout is blocked, settle the listed items or vacate with force",
			Blockers: blocked.Blockers,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, conflict := range conflictMessages {
		if errors.Is(err, conflict.err) {
			return http.StatusConflict, errorPayload{
				Type:      "conflict",
				Code:      conflict.err.Error(),
				Message:   conflict.message,
				Retryable: conflict.retryable,
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, accountdomain.ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidAccount):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "a valid api key is required",
		}
	case errors.Is(err, accessdomain.ErrPermissionDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    accessdomain.ErrPermissionDenied.Error(),
			Message: "you do not have access to this building",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, accountdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "your role does not allow this action",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:      "rate_limited",
			Message:   "too many write requests, please retry later",
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = payload.Type
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isOccupancyValidationError(err),
		isAccessValidationError(err),
		isInventoryValidationError(err),
		isTenantValidationError(err),
		isAccountValidationError(err),
		isAuditValidationError(err),
		errors.Is(err, softlock.ErrInvalidKind):
		return true
	default:
		return false
	}
}

func isOccupancyValidationError(err error) bool {
	return errors.Is(err, occupancydomain.ErrRentRequired) ||
		errors.Is(err, occupancydomain.ErrInvalidAssignmentTarget) ||
		errors.Is(err, occupancydomain.ErrInvalidRent) ||
		errors.Is(err, occupancydomain.ErrInvalidDeposit) ||
		errors.Is(err, occupancydomain.ErrInvalidDate) ||
		errors.Is(err, occupancydomain.ErrInvalidNoticeState) ||
		errors.Is(err, occupancydomain.ErrNotFlat)
}

func isAccessValidationError(err error) bool {
	return errors.Is(err, accessdomain.ErrInvalidGrantee) ||
		errors.Is(err, accessdomain.ErrInvalidKind) ||
		errors.Is(err, accessdomain.ErrInvalidBuildingID)
}

func isInventoryValidationError(err error) bool {
	return errors.Is(err, inventorydomain.ErrInvalidName) ||
		errors.Is(err, inventorydomain.ErrInvalidFloors) ||
		errors.Is(err, inventorydomain.ErrInvalidNoticePeriod) ||
		errors.Is(err, inventorydomain.ErrInvalidUnitNumber) ||
		errors.Is(err, inventorydomain.ErrInvalidUnitType) ||
		errors.Is(err, inventorydomain.ErrInvalidAmount) ||
		errors.Is(err, inventorydomain.ErrInvalidRoomNumber) ||
		errors.Is(err, inventorydomain.ErrInvalidSharingCount) ||
		errors.Is(err, inventorydomain.ErrInvalidBedNumber) ||
		errors.Is(err, inventorydomain.ErrUnitNotPG)
}

func isTenantValidationError(err error) bool {
	return errors.Is(err, tenantdomain.ErrInvalidName) ||
		errors.Is(err, tenantdomain.ErrInvalidPhone) ||
		errors.Is(err, tenantdomain.ErrInvalidEmail) ||
		errors.Is(err, tenantdomain.ErrInvalidPageToken)
}

func isAccountValidationError(err error) bool {
	return errors.Is(err, accountdomain.ErrInvalidName) ||
		errors.Is(err, accountdomain.ErrInvalidEmail) ||
		errors.Is(err, accountdomain.ErrInvalidRole)
}

func isAuditValidationError(err error) bool {
	return errors.Is(err, auditdomain.ErrInvalidPageToken) ||
		errors.Is(err, auditdomain.ErrInvalidTimeRange) ||
		errors.Is(err, auditdomain.ErrInvalidAction)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, occupancydomain.ErrNotFound),
		errors.Is(err, occupancydomain.ErrTenantNotFound),
		errors.Is(err, accessdomain.ErrNotFound),
		errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrMemberNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, occupancydomain.ErrNotFound):
		return "occupancy not found"
	case errors.Is(err, occupancydomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrNotFound):
		return "tenant not found"
	case errors.Is(err, accountdomain.ErrMemberNotFound):
		return "member not found"
	default:
		return "not found"
	}
}

var validationFields = map[string]string{
	"rent_required":             "rent",
	"invalid_assignment_target": "target",
	"invalid_total_floors":      "total_floors",
	"invalid_grantee":           "manager_id",
	"invalid_resource_kind":     "kind",
	"invalid_editing_kind":      "kind",
	"invalid_time_range":        "start_at",
	"unit_not_pg":               "unit_id",
	"unit_not_flat":             "unit_id",
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

var validationMessages = map[string]string{
	"invalid_request":           "invalid request",
	"rent_required":             "rent is required when assigning a bed",
	"invalid_assignment_target": "exactly one of unit_id or bed_id is required",
	"invalid_rent":              "rent must not be negative",
	"invalid_deposit":           "deposit must not be negative",
	"invalid_date":              "dates must be YYYY-MM-DD and not before the start date",
	"invalid_notice_state":      "unknown notice state",
	"unit_not_flat":             "co-occupants can only be added to a flat",
	"unit_not_pg":               "rooms can only be added to a PG unit",
	"invalid_grantee":           "grants can only be given to managers of this account",
	"invalid_notice_period":     "notice period must be between 0 and 365 days",
	"invalid_sharing_count":     "sharing count must be at least 1",
	"invalid_page_token":        "invalid page token",
	"invalid_time_range":        "start_at must not be after end_at",
}

func validationErrorMessage(code string) string {
	if message, ok := validationMessages[code]; ok {
		return message
	}
	return "invalid value"
}
