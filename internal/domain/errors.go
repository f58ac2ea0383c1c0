package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for common error conditions. Callers classify failures with
// errors.Is against these, never by message text.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleWrite indicates an optimistic-concurrency conflict: the unit
	// changed since it was loaded. The caller must reload, reapply, and retry.
	ErrStaleWrite = errors.New("stale write")

	// ErrOutOfOrderTransition indicates a transition that violates pass
	// ordering. The caller must retry with corrected input.
	ErrOutOfOrderTransition = errors.New("out of order transition")

	// ErrMissingCode indicates an excluded decision without exclusion codes.
	ErrMissingCode = errors.New("missing exclusion code")

	// ErrConflictingMerge indicates an attempted merge of two decided units
	// with conflicting outcomes; it requires human arbitration.
	ErrConflictingMerge = errors.New("conflicting merge")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// StaleWriteError reports an optimistic-versioning conflict on a unit save.
type StaleWriteError struct {
	UnitID          uuid.UUID
	ExpectedVersion int64
}

// Error implements the error interface.
func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write on unit %s: expected version %d", e.UnitID, e.ExpectedVersion)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *StaleWriteError) Unwrap() error {
	return ErrStaleWrite
}

// OutOfOrderTransitionError reports a transition attempted before its
// prerequisites: pass 2 on a unit without a pass-1 outcome, or an automated
// transition on a state where automation has already stopped.
type OutOfOrderTransitionError struct {
	UnitID uuid.UUID
	State  ScreeningState
	Pass   Pass
}

// Error implements the error interface.
func (e *OutOfOrderTransitionError) Error() string {
	return fmt.Sprintf("out of order transition on unit %s: pass %d not allowed in state %q", e.UnitID, e.Pass, e.State)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *OutOfOrderTransitionError) Unwrap() error {
	return ErrOutOfOrderTransition
}

// MissingCodeError reports an excluded decision with an empty exclusion-code set.
type MissingCodeError struct {
	UnitID uuid.UUID
	Pass   Pass
}

// Error implements the error interface.
func (e *MissingCodeError) Error() string {
	return fmt.Sprintf("excluded decision on unit %s pass %d carries no exclusion codes", e.UnitID, e.Pass)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MissingCodeError) Unwrap() error {
	return ErrMissingCode
}

// ConflictingMergeError reports an attempted merge of two decided units whose
// current decisions disagree. The reconciler never auto-resolves this; both
// units stay unmerged until a human arbitrates.
type ConflictingMergeError struct {
	UnitA     uuid.UUID
	UnitB     uuid.UUID
	DecisionA DecisionValue
	DecisionB DecisionValue
}

// Error implements the error interface.
func (e *ConflictingMergeError) Error() string {
	return fmt.Sprintf("conflicting merge of units %s (%s) and %s (%s)", e.UnitA, e.DecisionA, e.UnitB, e.DecisionB)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConflictingMergeError) Unwrap() error {
	return ErrConflictingMerge
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
