package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	// File processing errors
	ErrCodeInvalidFile       ErrorCode = "INVALID_FILE"
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeFileParseError    ErrorCode = "FILE_PARSE_ERROR"

	// Postcode pipeline configuration errors
	ErrCodeInvalidConfig          ErrorCode = "INVALID_CONFIG"
	ErrCodeColumnNotFound         ErrorCode = "COLUMN_NOT_FOUND"
	ErrCodeInvalidMethod          ErrorCode = "INVALID_METHOD"
	ErrCodeMissingRegexPattern    ErrorCode = "MISSING_REGEX_PATTERN"
	ErrCodeInvalidMasterReference ErrorCode = "INVALID_MASTER_REFERENCE"
	ErrCodeDuplicateReferenceKey  ErrorCode = "DUPLICATE_REFERENCE_KEY"
	ErrCodeReferenceUnavailable   ErrorCode = "REFERENCE_UNAVAILABLE"

	// Database errors
	ErrCodeDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Queue errors
	ErrCodeQueueError ErrorCode = "QUEUE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// File processing errors

func InvalidFile(message string) *AppError {
	return New(ErrCodeInvalidFile, message, http.StatusBadRequest)
}

func FileTooLarge(maxSize int64) *AppError {
	return New(ErrCodeFileTooLarge,
		fmt.Sprintf("file size exceeds maximum allowed size of %d MB", maxSize),
		http.StatusBadRequest)
}

func UnsupportedFormat(format string) *AppError {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", format),
		http.StatusBadRequest)
}

func FileParseError(err error, filename string) *AppError {
	return Wrap(err, ErrCodeFileParseError,
		fmt.Sprintf("failed to parse file %s", filename),
		http.StatusBadRequest)
}

// Postcode pipeline errors. All of these abort the request; row level
// validation failures are never reported through AppError.

func InvalidConfig(message string) *AppError {
	return New(ErrCodeInvalidConfig, message, http.StatusBadRequest)
}

func ColumnNotFound(column string) *AppError {
	return New(ErrCodeColumnNotFound,
		fmt.Sprintf("column %q not found in table", column),
		http.StatusBadRequest).WithDetails("column", column)
}

func InvalidMethod(method string) *AppError {
	return New(ErrCodeInvalidMethod,
		fmt.Sprintf("invalid method %q, expected DIRECT or INDIRECT", method),
		http.StatusBadRequest).WithDetails("method", method)
}

func MissingRegexPattern() *AppError {
	return New(ErrCodeMissingRegexPattern,
		"a regex pattern is required for the INDIRECT method",
		http.StatusBadRequest)
}

func InvalidMasterReference(message string) *AppError {
	return New(ErrCodeInvalidMasterReference, message, http.StatusInternalServerError)
}

func DuplicateReferenceKey(key string, count int) *AppError {
	return New(ErrCodeDuplicateReferenceKey,
		fmt.Sprintf("reference key %q appears %d times", key, count),
		http.StatusInternalServerError).
		WithDetails("key", key).
		WithDetails("count", count)
}

func ReferenceUnavailable(err error) *AppError {
	return Wrap(err, ErrCodeReferenceUnavailable, "master reference could not be loaded", http.StatusServiceUnavailable)
}

// Database errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func RecordNotFound(resource string) *AppError {
	return New(ErrCodeRecordNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound)
}

// Queue errors

func QueueError(err error) *AppError {
	return Wrap(err, ErrCodeQueueError, "failed to enqueue task", http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}