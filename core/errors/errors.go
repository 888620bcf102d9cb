// Package errors provides standardized error types and helpers for the flatbed codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a requested row or resource was not found
	ErrNotFound = errors.New("not found")
	// ErrSchemaConflict indicates a column-identifier collision or a
	// structural conflict between flat keys
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrInvalidCondition indicates a malformed where-condition expression
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrInvalidArgument indicates an out-of-range or malformed argument
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorage indicates an underlying relational engine failure
	ErrStorage = errors.New("storage failure")
	// ErrUnknownColumn indicates a column identifier with no recorded flat key
	ErrUnknownColumn = errors.New("unknown column")
)

// NotFoundError represents a missing row with context
type NotFoundError struct {
	Collection string // Collection path
	ID         string // Row identifier that was requested
	Err        error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("document not found in %s: %s", e.Collection, e.ID)
	}
	return fmt.Sprintf("document not found in %s", e.Collection)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// SchemaConflictError represents a column-identifier collision between two
// distinct flat keys, or a scalar/sub-document conflict at a shared path
// prefix during reconstruction.
type SchemaConflictError struct {
	Column   string // Column identifier involved
	Existing string // Flat key (or path) already recorded
	New      string // Conflicting flat key (or path)
}

func (e *SchemaConflictError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema conflict on column %s: %q vs %q", e.Column, e.Existing, e.New)
	}
	return fmt.Sprintf("schema conflict: %q vs %q", e.Existing, e.New)
}

func (e *SchemaConflictError) Unwrap() error {
	return ErrSchemaConflict
}

// ConditionError represents a where-condition that could not be parsed as an
// equality conjunction.
type ConditionError struct {
	Expr    string // Original expression text
	Message string // Human-readable error message
	Err     error  // Underlying parse error, if any
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("invalid condition %q: %s", e.Expr, e.Message)
}

func (e *ConditionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidCondition
}

// Is keeps ErrInvalidCondition in the chain even when Unwrap exposes an
// underlying parse error.
func (e *ConditionError) Is(target error) bool {
	return target == ErrInvalidCondition
}

// ArgumentError represents an invalid argument to a store operation.
type ArgumentError struct {
	Name    string // Argument name
	Message string // Why the value was rejected
}

func (e *ArgumentError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// StorageError represents an underlying relational engine failure with context.
type StorageError struct {
	Op    string // Operation being performed (e.g., "insert", "ensure table")
	Table string // Table involved, if known
	Err   error  // Underlying driver error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage failure during %s on %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return ErrStorage
}

// Cause returns the underlying driver error.
func (e *StorageError) Cause() error {
	return e.Err
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(collection, id string) *NotFoundError {
	return &NotFoundError{
		Collection: collection,
		ID:         id,
	}
}

// NewSchemaConflict creates a SchemaConflictError
func NewSchemaConflict(column, existing, conflicting string) *SchemaConflictError {
	return &SchemaConflictError{
		Column:   column,
		Existing: existing,
		New:      conflicting,
	}
}

// NewCondition creates a ConditionError
func NewCondition(expr, message string) *ConditionError {
	return &ConditionError{
		Expr:    expr,
		Message: message,
	}
}

// NewArgument creates an ArgumentError
func NewArgument(name, message string) *ArgumentError {
	return &ArgumentError{
		Name:    name,
		Message: message,
	}
}

// NewStorage creates a StorageError
func NewStorage(op, table string, err error) *StorageError {
	return &StorageError{
		Op:    op,
		Table: table,
		Err:   err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
