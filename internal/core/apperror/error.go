// Package apperror is the error type every layer returns when the failure
// must reach a client: a stable code, a message and an HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// 5xx
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"

	// 400
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidPayload = "INVALID_PAYLOAD"

	// 404
	CodeNotFound = "NOT_FOUND"

	// 409
	CodeConflict       = "CONFLICT"
	CodeSessionNotOpen = "SESSION_NOT_OPEN"
	CodeIdempotency    = "IDEMPOTENCY_CONFLICT"
)

// AppError carries what the API renders; Err is logged and never sent.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func newError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches another *AppError by code, so errors.Is(err, &AppError{Code: CodeNotFound}) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code != "" && t.Code == e.Code
}

// WithDetail sets one detail and returns e for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError {
	return newError(CodeValidation, http.StatusBadRequest, message)
}

// NewInvalidPayload rejects an operation whose payload failed to decode or validate.
func NewInvalidPayload(opType string, err error) *AppError {
	return newError(CodeInvalidPayload, http.StatusBadRequest, "invalid payload for "+opType).
		WithDetail("op_type", opType).
		WithCause(err)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(CodeNotFound, http.StatusNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// NewSessionNotOpen is returned when counting into or finalizing a session
// that is no longer open.
func NewSessionNotOpen(sessionID any, status string) *AppError {
	return newError(CodeSessionNotOpen, http.StatusConflict, "Inventory session is not open").
		WithDetail("session_id", sessionID).
		WithDetail("status", status)
}

// NewInternal wraps an unexpected failure; the client sees a generic message.
func NewInternal(err error) *AppError {
	return newError(CodeInternal, http.StatusInternalServerError, "Internal server error").WithCause(err)
}

// NewUnavailable reports an upstream that cannot be reached.
func NewUnavailable(service string, err error) *AppError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, service+" is unavailable").WithCause(err)
}

// NewIdempotencyConflict: another request holding the same key is still running.
func NewIdempotencyConflict(key string) *AppError {
	return newError(CodeIdempotency, http.StatusConflict, "Operation already in progress").
		WithDetail("idempotency_key", key)
}

// NewIdempotencyMismatch: the key was first used for a different request.
func NewIdempotencyMismatch(key string) *AppError {
	return newError(CodeIdempotency, http.StatusConflict, "Idempotency key mismatch").
		WithDetail("idempotency_key", key)
}

func NewConflict(message string) *AppError {
	return newError(CodeConflict, http.StatusConflict, message)
}

func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus is 500 for anything that is not an AppError.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == CodeNotFound
}

// IsConflict is true for every 409, session-not-open included.
func IsConflict(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.HTTPStatus == http.StatusConflict
}

// IsValidation is true for every 400.
func IsValidation(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.HTTPStatus == http.StatusBadRequest
}
