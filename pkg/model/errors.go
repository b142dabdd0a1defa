package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation      ErrorCode = "VALIDATION_ERROR"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
	ErrQueueEmpty      ErrorCode = "QUEUE_EMPTY"
	ErrInvalidIndex    ErrorCode = "INVALID_INDEX"
	ErrUnitUnavailable ErrorCode = "UNIT_UNAVAILABLE"
)

// APIError is a structured error returned by the apron API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

var (
	// ErrEmptyQueue is returned when there is nothing to schedule. It is informational.
	ErrEmptyQueue = errors.New("no flights in the queue")
	// ErrDuplicateFlight is returned when a flight ID was already admitted.
	ErrDuplicateFlight = errors.New("flight already admitted")
	// ErrFlightNotFound is returned for IDs the scheduler does not track.
	ErrFlightNotFound = errors.New("flight not found")
	// ErrGateNotPending is returned when a gate is requested for a flight that is not waiting for one.
	ErrGateNotPending = errors.New("flight is not waiting for a gate")
)

// InvalidIndexError is returned when a resource pick is outside the pool.
type InvalidIndexError struct {
	Kind  ResourceKind
	Index int
	Size  int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid %s selection %d (pool has %d)", e.Kind, e.Index+1, e.Size)
}

// UnitUnavailableError is returned when the picked unit is already held.
// Index is -1 when no unit of the pool was available at all.
type UnitUnavailableError struct {
	Kind   ResourceKind
	Index  int
	UnitID string
	Holder string
}

func (e *UnitUnavailableError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("no %s available", e.Kind)
	}
	if e.Holder != "" {
		return fmt.Sprintf("%s %s is occupied by %s", e.Kind, e.UnitID, e.Holder)
	}
	return fmt.Sprintf("%s %s is occupied", e.Kind, e.UnitID)
}

// LoadError reports a flight source that could not be read, or one bad record in it.
// Line is 0 when the whole source failed.
type LoadError struct {
	Source string
	Line   int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load %s: record %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// IsSelectionError reports whether err came from a bad or stale resource pick.
func IsSelectionError(err error) bool {
	var idx *InvalidIndexError
	var un *UnitUnavailableError
	return errors.As(err, &idx) || errors.As(err, &un)
}
