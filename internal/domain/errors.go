package domain

import (
	"errors"
	"fmt"
	"time"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required
	EFORBIDDEN    = "forbidden"    // Permission denied
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"   // Rate limit exceeded
	EINTERNAL     = "internal"     // Internal server error
	EPAYMENT      = "payment"      // Plan upgrade required
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "ratelimit.check")
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
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Denial errors
// =============================================================================

// RateLimitError is returned when a windowed operation has exhausted its
// limit. It carries the metadata callers need to set Retry-After and
// X-RateLimit-* response headers.
type RateLimitError struct {
	Op         string
	Kind       OperationKind
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded for %s, retry in %s", e.Op, e.Kind, e.RetryAfter.Round(time.Second))
}

// AllowanceError is returned when a monthly feature allowance is exhausted.
// Unlike RateLimitError, waiting does not help until the billing cycle
// resets, so the message steers the user toward an upgrade.
type AllowanceError struct {
	Op      string
	Feature Feature
	Used    int64
	Limit   int64
	ResetAt time.Time
}

func (e *AllowanceError) Error() string {
	return fmt.Sprintf("%s: monthly limit reached for %s (%d of %d used)", e.Op, e.Feature, e.Used, e.Limit)
}

// UpgradeMessage returns the human-readable denial message shown to users.
func (e *AllowanceError) UpgradeMessage() string {
	return fmt.Sprintf("You have used all %d of your monthly %s credits. Upgrade your plan to continue.", e.Limit, e.Feature.DisplayName())
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return ERATELIMIT
	}
	var ae *AllowanceError
	if errors.As(err, &ae) {
		return EPAYMENT
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return "Too many requests. Please try again later."
	}
	var ae *AllowanceError
	if errors.As(err, &ae) {
		return ae.UpgradeMessage()
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Op
	}
	var ae *AllowanceError
	if errors.As(err, &ae) {
		return ae.Op
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}
