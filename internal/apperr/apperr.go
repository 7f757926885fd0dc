// Package apperr defines the application error taxonomy and its mapping to
// HTTP responses. Components return these errors; only the API boundary
// converts them to JSON.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrSchema         = errors.New("schema error")
	ErrFeatureMism    = errors.New("feature mismatch")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrStorage        = errors.New("storage error")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("conflict")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal error")
)

// AppError carries a classified error with HTTP context.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation creates a client-input error with per-field details.
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Schema indicates a required field is absent from preprocessor input,
// i.e. a deployment mismatch between the model artifact and the code.
func Schema(field string) *AppError {
	return &AppError{
		Err:        ErrSchema,
		Message:    fmt.Sprintf("required field %q absent from input", field),
		Code:       "SCHEMA_ERROR",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]string{"field": field},
	}
}

// FeatureMismatch indicates the feature vector width disagrees with what the
// bound preprocessor produces.
func FeatureMismatch(got, want int) *AppError {
	return &AppError{
		Err:        ErrFeatureMism,
		Message:    fmt.Sprintf("feature vector width %d, model expects %d", got, want),
		Code:       "FEATURE_MISMATCH",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ModelNotLoaded indicates prediction was attempted before a model bundle
// was bound. The serving process must refuse traffic in this state.
func ModelNotLoaded() *AppError {
	return &AppError{
		Err:        ErrModelNotLoaded,
		Message:    "no model bundle loaded",
		Code:       "MODEL_NOT_LOADED",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Storage wraps a backing-store failure.
func Storage(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrStorage, err),
		Message:    "storage operation failed",
		Code:       "STORAGE_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Conflict signals a data-integrity anomaly, e.g. a second outcome report
// that disagrees with the one already attached.
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Internal wraps an unclassified failure.
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap adds context to an error, preserving an existing AppError's
// classification. The original error is left untouched.
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := *appErr
		wrapped.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return &wrapped
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}
