package model

import (
	"errors"
	"strings"
)

// Lifecycle error kinds. Every validator failure wraps exactly one of them.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrImmutableField = errors.New("immutable field violation")
	ErrStateLock      = errors.New("state lock violation")
	ErrMalformedPatch = errors.New("malformed patch")
	ErrDeviceNotFound = errors.New("device not found")
)

var (
	ErrInvalidDeviceID    = errors.New("invalid device ID")
	ErrDuplicateDevice    = errors.New("device already exists")
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// LifecycleError is the structured outcome of a rejected mutation.
type LifecycleError struct {
	Kind    error
	Message string
	Fields  *ValidationErrors
}

func (e *LifecycleError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}

	return e.Message
}

func (e *LifecycleError) Unwrap() error {
	return e.Kind
}

// AsLifecycleError extracts a LifecycleError from err's chain.
func AsLifecycleError(err error) (*LifecycleError, bool) {
	var lerr *LifecycleError
	if errors.As(err, &lerr) {
		return lerr, true
	}

	return nil, false
}

func newLifecycleError(kind error, message string) *LifecycleError {
	return &LifecycleError{Kind: kind, Message: message}
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}

	messages := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		messages = append(messages, e.Message)
	}

	return strings.Join(messages, "; ")
}

func (v *ValidationErrors) Add(field, message, code string) {
	v.Errors = append(v.Errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}
