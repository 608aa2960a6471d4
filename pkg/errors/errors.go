package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrBadRequest           = errors.New("bad request")
	ErrConflict             = errors.New("resource conflict")
	ErrInternal             = errors.New("internal server error")
	ErrValidation           = errors.New("validation error")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateBatchNumber = errors.New("duplicate batch number")
	ErrAlreadyApproved      = errors.New("movement already approved")
	ErrConcurrencyConflict  = errors.New("concurrent stock modification")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Domain error constructors

// InsufficientStock is returned when an outbound movement would drive stock
// negative. Available and requested quantities are carried in the details so
// callers can render a useful message.
func InsufficientStock(entityID string, available, requested int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock: %d available, %d requested", available, requested),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"entity_id": entityID,
			"available": fmt.Sprintf("%d", available),
			"requested": fmt.Sprintf("%d", requested),
		},
	}
}

// DuplicateBatchNumber is returned when a (product, batch number) pair already exists.
func DuplicateBatchNumber(productID, batchNumber string) *AppError {
	return &AppError{
		Err:        ErrDuplicateBatchNumber,
		Code:       "DUPLICATE_BATCH_NUMBER",
		Message:    fmt.Sprintf("batch number %q already exists for this product", batchNumber),
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"product_id":   productID,
			"batch_number": batchNumber,
		},
	}
}

// AlreadyApproved is returned when mutating an approved movement. Approved
// movements are permanent audit records.
func AlreadyApproved(movementID string) *AppError {
	return &AppError{
		Err:        ErrAlreadyApproved,
		Code:       "ALREADY_APPROVED",
		Message:    "movement is approved and can no longer be modified",
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"movement_id": movementID,
		},
	}
}

// ConcurrencyConflict is returned when a batch selected for allocation was
// consumed by a concurrent writer before the allocation committed. The caller
// decides whether to retry, since retrying means re-deriving the selection.
func ConcurrencyConflict(batchID string) *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Code:       "CONCURRENCY_CONFLICT",
		Message:    "batch quantity changed during allocation, retry the operation",
		StatusCode: http.StatusConflict,
		Details: map[string]string{
			"batch_id": batchID,
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
