package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeDatabase   ErrorType = "database"
	ErrTypeInternal   ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions.
// Entity and Args are set for failures raised at the repository boundary.
type Error struct {
	Type        ErrorType
	Message     string
	Entity      string
	Args        []any
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// As exposes the structured error inside err, if any
func As(err error) (*Error, bool) {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr, true
	}

	return nil, false
}

// NewNotFound reports a lookup that matched zero rows
func NewNotFound(entity string, args ...any) *Error {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}

	return &Error{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("no %s found for [%s]", entity, strings.Join(parts, ", ")),
		Entity:  entity,
		Args:    args,
	}
}

// NewEmptyPayload reports a write whose effective payload has no columns
func NewEmptyPayload(entity string) *Error {
	return (&Error{
		Type:    ErrTypeValidation,
		Message: fmt.Sprintf("nothing to write for %s: payload has no known columns", entity),
		Entity:  entity,
	}).WithSuggestion("Send at least one column that exists on the table")
}

// NewCountMismatch reports a bulk operation that matched fewer rows than identifiers given
func NewCountMismatch(entity string, requested, matched int) *Error {
	return &Error{
		Type:    ErrTypeValidation,
		Message: fmt.Sprintf("%s: requested %d identifiers but matched %d rows", entity, requested, matched),
		Entity:  entity,
		Args:    []any{requested, matched},
	}
}

// NewMissingMapping reports a structural mapping an entity needs but does not declare
func NewMissingMapping(entity, key string) *Error {
	return (&Error{
		Type:    ErrTypeConfig,
		Message: fmt.Sprintf("%s has no mapping for %q", entity, key),
		Entity:  entity,
		Args:    []any{key},
	}).WithSuggestion("Declare the key in the entity's status map")
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}
