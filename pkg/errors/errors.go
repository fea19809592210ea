package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError represents a classified application error. Code is the stable
// kind callers switch on; Conflicts enumerates the existing values or blocks
// that collided when Code is ErrCodeConflict.
type AppError struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Status    int      `json:"-"`
	Conflicts []string `json:"conflicts,omitempty"`
	Err       error    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithErr returns a copy of the error carrying err as its cause. The copy
// still matches the receiver with errors.Is.
func (e *AppError) WithErr(err error) *AppError {
	return &AppError{
		Code:      e.Code,
		Message:   e.Message,
		Status:    e.Status,
		Conflicts: e.Conflicts,
		Err:       &causeChain{sentinel: e, err: err},
	}
}

// causeChain lets a copied AppError unwrap to both its sentinel and the
// underlying cause.
type causeChain struct {
	sentinel *AppError
	err      error
}

func (c *causeChain) Error() string   { return c.err.Error() }
func (c *causeChain) Unwrap() []error { return []error{c.sentinel, c.err} }

// Error kinds
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeValidation = "VALIDATION_ERROR"
)

// New creates a new AppError
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Internal covers store corruption and dependent writes that failed after
// the primary write committed.
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Validation(message string) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest)
}

// Validationf formats a validation message
func Validationf(format string, args ...interface{}) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

// Conflict reports a uniqueness or overlap violation together with every
// conflicting existing value.
func Conflict(message string, conflicts ...string) *AppError {
	return &AppError{
		Code:      ErrCodeConflict,
		Message:   message,
		Status:    http.StatusConflict,
		Conflicts: conflicts,
	}
}

// From classifies any error. Errors that carry no AppError are internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", err)
}

// CodeOf returns the stable kind of err, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Code
}

// IsConflict reports whether err is a conflict
func IsConflict(err error) bool { return CodeOf(err) == ErrCodeConflict }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsValidation reports whether err is a validation or bad request error
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeValidation || code == ErrCodeBadRequest
}

// IsInternal reports whether err is internal
func IsInternal(err error) bool { return CodeOf(err) == ErrCodeInternal }

// JoinIDs renders ids for error messages.
func JoinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}
