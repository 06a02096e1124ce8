package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while building preference trees and
// apportioning seats.
var (
	// ErrInvalidArgument indicates that an operation received an argument
	// outside its accepted domain, such as a non-positive seat count, a
	// negative frequency adjustment or a duplicate candidate on a ballot.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTypeMismatch indicates that a weight is not a usable number
	// (NaN or infinite).
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDegenerateInput indicates that the input cannot produce a result,
	// such as a seat request against a tree holding zero votes.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrMissingKey indicates that a strict lookup did not find the requested
	// ballot prefix or ballot position.
	ErrMissingKey = errors.New("missing key")

	// ErrBallotsExhausted indicates that every candidate left the working
	// tally while seats were still unfilled.
	ErrBallotsExhausted = fmt.Errorf("%w: ballots exhausted before all seats were filled", ErrDegenerateInput)
)

// TallyError represents an error that occurred during a tally operation.
// It records which operation failed alongside the underlying cause.
type TallyError struct {
	// Operation describes what operation was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for TallyError.
func (e *TallyError) Error() string {
	return fmt.Sprintf("tally error: operation=%s, err=%v", e.Operation, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *TallyError) Unwrap() error { return e.Err }

// NewTallyError creates a new TallyError with the given details.
func NewTallyError(operation string, err error) *TallyError {
	return &TallyError{
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string

	// causes holds the errors recorded with Add.
	causes []error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// Add records err's message and keeps err reachable through errors.Is and
// errors.As.
func (e *ValidationError) Add(err error) {
	e.Errors = append(e.Errors, err.Error())
	e.causes = append(e.causes, err)
}

// Unwrap returns the errors recorded with Add.
func (e *ValidationError) Unwrap() []error { return e.causes }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
