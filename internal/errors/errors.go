// Package errors provides custom error types for the Ledgerly API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	StatusCode int          `json:"-"`
	Internal   error        `json:"-"`
	Fields     []FieldError `json:"fields,omitempty"`
}

// FieldError is a single field-level validation failure. Rule creation and
// other validating endpoints report every failing field at once rather than
// stopping at the first.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// NewValidation creates a validation AppError carrying a field-message list.
// Nothing is persisted when a validation error is returned.
func NewValidation(fields []FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Validation failed",
		StatusCode: http.StatusUnprocessableEntity,
		Fields:     fields,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	// ErrOwnershipMismatch is returned when a bulk operation references ids
	// that are not all owned by the caller. The whole operation is rejected
	// before any mutation.
	ErrOwnershipMismatch = &AppError{Code: "OWNERSHIP_MISMATCH", Message: "Some records not found or unauthorized", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
)

// Category errors.
var (
	ErrCategoryNotFound  = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrDuplicateCategory = &AppError{Code: "DUPLICATE_CATEGORY", Message: "A category with this name already exists", StatusCode: http.StatusConflict}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrZeroAmount          = &AppError{Code: "ZERO_AMOUNT", Message: "Transaction amount must be nonzero", StatusCode: http.StatusBadRequest}
)

// Categorization rule errors.
var (
	ErrRuleNotFound     = &AppError{Code: "RULE_NOT_FOUND", Message: "Categorization rule not found", StatusCode: http.StatusNotFound}
	ErrDuplicateRule    = &AppError{Code: "DUPLICATE_RULE", Message: "A rule with this name already exists", StatusCode: http.StatusConflict}
	ErrInvalidPredicate = &AppError{Code: "INVALID_PREDICATE", Message: "Rule predicate has invalid structure", StatusCode: http.StatusUnprocessableEntity}
)

// Anomaly errors.
var (
	ErrAnomalyNotFound = &AppError{Code: "ANOMALY_NOT_FOUND", Message: "Anomaly not found", StatusCode: http.StatusNotFound}
)

// Import errors.
var (
	ErrImportNotFound  = &AppError{Code: "IMPORT_NOT_FOUND", Message: "CSV import not found", StatusCode: http.StatusNotFound}
	ErrNoFile          = &AppError{Code: "NO_FILE", Message: "No file provided", StatusCode: http.StatusBadRequest}
	ErrBlobUnavailable = &AppError{Code: "BLOB_UNAVAILABLE", Message: "Could not access uploaded file", StatusCode: http.StatusBadGateway}
	ErrMalformedCSV    = &AppError{Code: "MALFORMED_CSV", Message: "File is not parseable CSV", StatusCode: http.StatusUnprocessableEntity}
)
