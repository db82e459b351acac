package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required
	EFORBIDDEN    = "forbidden"    // Permission denied or quota exhausted
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"   // Rate limit exceeded
	EINTERNAL     = "internal"     // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.can_submit")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal errors are replaced with a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{Code: EUNAUTHORIZED, Op: op, Message: message}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{Code: EFORBIDDEN, Op: op, Message: message}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{Code: ECONFLICT, Op: op, Message: message}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{Code: EINTERNAL, Op: op, Message: message, Err: err}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// =============================================================================
// Quota errors
// =============================================================================

// QuotaReason identifies which plan limit rejected an action.
type QuotaReason string

const (
	QuotaReasonFormLimit          QuotaReason = "form_limit"
	QuotaReasonSubmissionLimit    QuotaReason = "submission_limit"
	QuotaReasonCampaignsDisabled  QuotaReason = "campaigns_disabled"
	QuotaReasonCampaignLimit      QuotaReason = "campaign_limit"
	QuotaReasonRecipientLimit     QuotaReason = "recipient_limit"
	QuotaReasonFeatureUnavailable QuotaReason = "feature_unavailable"
)

// QuotaError carries the numbers behind a quota rejection.
// It is wrapped inside a domain.Error with code EFORBIDDEN.
type QuotaError struct {
	Reason QuotaReason
	Plan   Plan
	Used   int64
	Limit  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (%d/%d)", e.Reason, e.Used, e.Limit)
}

// QuotaExceeded creates a 403-class error describing which limit was hit.
func QuotaExceeded(op string, reason QuotaReason, plan Plan, used, limit int64) *Error {
	var msg string
	switch reason {
	case QuotaReasonFormLimit:
		msg = fmt.Sprintf("Form limit reached (%d/%d forms for your %s plan)", used, limit, plan.DisplayName())
	case QuotaReasonSubmissionLimit:
		msg = fmt.Sprintf("Monthly submission limit reached (%d/%d submissions for your %s plan)", used, limit, plan.DisplayName())
	case QuotaReasonCampaignsDisabled:
		msg = fmt.Sprintf("Campaigns are not available on the %s plan", plan.DisplayName())
	case QuotaReasonCampaignLimit:
		msg = fmt.Sprintf("Monthly campaign limit reached (%d/%d campaigns for your %s plan)", used, limit, plan.DisplayName())
	case QuotaReasonRecipientLimit:
		msg = fmt.Sprintf("Too many recipients (%d/%d recipients for your %s plan)", used, limit, plan.DisplayName())
	default:
		msg = fmt.Sprintf("This feature is not available on the %s plan", plan.DisplayName())
	}

	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: msg,
		Err: &QuotaError{
			Reason: reason,
			Plan:   plan,
			Used:   used,
			Limit:  limit,
		},
	}
}

// QuotaReasonOf returns the quota reason wrapped in err, if any.
func QuotaReasonOf(err error) (QuotaReason, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Reason, true
	}
	return "", false
}

// =============================================================================
// Validation errors
// =============================================================================

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// AddFieldError adds a field error to an existing validation error.
// If err is not a ValidationError, returns a new one.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}
