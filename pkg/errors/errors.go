// Package errors provides structured error types for stackforge.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the registry, the composer, the CLI and the API
//   - Machine-readable error codes for programmatic handling
//   - Structured details (cycle chains, dependents, conflicts) reachable with errors.As
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every error kind produced by the registry and the composition engine has a
// code. Registry-level codes (VALIDATION, CONFLICT, DEPENDENTS_EXIST,
// CIRCULAR_DEPENDENCY, MISSING_DEPENDENCY, NOT_FOUND) abort the calling
// operation. EXECUTION_FAILED wraps a unit failure that escaped a composition's
// error policy. ROLLBACK_FAILED is only ever logged.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeValidation, "version %q is not a semantic version", v)
//	if errors.Is(err, errors.ErrCodeValidation) {
//	    // Handle validation error
//	}
//
//	var cycle *errors.CircularDependencyError
//	if stderrors.As(err, &cycle) {
//	    fmt.Println(strings.Join(cycle.Chain, " -> "))
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeValidation   Code = "VALIDATION"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeInvalidSpec  Code = "INVALID_SPEC"

	// Graph errors
	ErrCodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	ErrCodeMissingDependency  Code = "MISSING_DEPENDENCY"
	ErrCodeConflict           Code = "CONFLICT"
	ErrCodeDependentsExist    Code = "DEPENDENTS_EXIST"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Execution errors
	ErrCodeExecution Code = "EXECUTION_FAILED"
	ErrCodeRollback  Code = "ROLLBACK_FAILED"
	ErrCodeCanceled  Code = "CANCELED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Validation is shorthand for New(ErrCodeValidation, ...).
func Validation(format string, args ...any) *Error {
	return New(ErrCodeValidation, format, args...)
}

// coder is implemented by the typed error kinds below.
type coder interface {
	Code() Code
}

// Is reports whether any error in err's chain carries the given code.
func Is(err error, code Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if c, ok := codeOf(e); ok && c == code {
			return true
		}
	}
	return false
}

// GetCode extracts the outermost error code from an error chain.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if c, ok := codeOf(e); ok {
			return c
		}
	}
	return ""
}

func codeOf(err error) (Code, bool) {
	switch e := err.(type) {
	case *Error:
		return e.Code, true
	case coder:
		return e.Code(), true
	}
	return "", false
}

// As is errors.As, re-exported so callers importing this package need not
// alias the standard library's.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// CircularDependencyError reports a dependency cycle. Chain lists the ids
// along the cycle, starting and ending with the same id.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%s: circular dependency: %s", e.Code(), strings.Join(e.Chain, " -> "))
}

// Code returns the error code for this error type.
func (e *CircularDependencyError) Code() Code { return ErrCodeCircularDependency }

// MissingDependencyError reports a required dependency that could not be resolved.
type MissingDependencyError struct {
	ID         string // Descriptor declaring the dependency
	Dependency string // Missing dependency id
	Range      string // Requested version range, may be empty
}

func (e *MissingDependencyError) Error() string {
	dep := e.Dependency
	if e.Range != "" {
		dep += "@" + e.Range
	}
	return fmt.Sprintf("%s: %s requires %s which is not available", e.Code(), e.ID, dep)
}

// Code returns the error code for this error type.
func (e *MissingDependencyError) Code() Code { return ErrCodeMissingDependency }

// ConflictError reports that two descriptors declare a conflict with each other.
type ConflictError struct {
	ID   string // Descriptor being registered
	With string // Already registered descriptor it conflicts with
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s conflicts with registered generator %s", e.Code(), e.ID, e.With)
}

// Code returns the error code for this error type.
func (e *ConflictError) Code() Code { return ErrCodeConflict }

// DependentsExistError reports that a descriptor cannot be removed while
// other descriptors depend on it.
type DependentsExistError struct {
	ID         string
	Dependents []string
}

func (e *DependentsExistError) Error() string {
	return fmt.Sprintf("%s: cannot unregister %s: required by %s", e.Code(), e.ID, strings.Join(e.Dependents, ", "))
}

// Code returns the error code for this error type.
func (e *DependentsExistError) Code() Code { return ErrCodeDependentsExist }

// NotFoundError reports an id (and optional version range) that did not resolve.
type NotFoundError struct {
	ID      string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("%s: generator %s@%s not found", e.Code(), e.ID, e.Version)
	}
	return fmt.Sprintf("%s: generator %s not found", e.Code(), e.ID)
}

// Code returns the error code for this error type.
func (e *NotFoundError) Code() Code { return ErrCodeNotFound }

// ExecutionError wraps the failure of a single generator unit.
type ExecutionError struct {
	ID    string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: generator %s: %v", e.Code(), e.ID, e.Cause)
}

// Unwrap returns the underlying unit failure.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Code returns the error code for this error type.
func (e *ExecutionError) Code() Code { return ErrCodeExecution }

// RollbackError records a compensating action that could not be applied.
// Rollback is best-effort, so these errors are collected and logged only.
type RollbackError struct {
	Action string
	Target string
	Cause  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Code(), e.Action, e.Target, e.Cause)
}

// Unwrap returns the underlying failure.
func (e *RollbackError) Unwrap() error { return e.Cause }

// Code returns the error code for this error type.
func (e *RollbackError) Code() Code { return ErrCodeRollback }
