package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValidation, "test message: %s", "value")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "VALIDATION: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, cause, "failed to persist")

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeValidation, "test"),
			code:     ErrCodeValidation,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeValidation, "test"),
			code:     ErrCodeConflict,
			expected: false,
		},
		{
			name:     "wrapped error outer code",
			err:      Wrap(ErrCodeInternal, New(ErrCodeValidation, "inner"), "outer"),
			code:     ErrCodeInternal,
			expected: true,
		},
		{
			name:     "wrapped error inner code",
			err:      Wrap(ErrCodeInternal, New(ErrCodeValidation, "inner"), "outer"),
			code:     ErrCodeValidation,
			expected: true,
		},
		{
			name:     "typed error",
			err:      &CircularDependencyError{Chain: []string{"a", "b", "a"}},
			code:     ErrCodeCircularDependency,
			expected: true,
		},
		{
			name:     "typed error behind fmt wrap",
			err:      fmt.Errorf("resolve: %w", &NotFoundError{ID: "x"}),
			code:     ErrCodeNotFound,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeValidation,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeValidation,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeConflict, "test"),
			expected: ErrCodeConflict,
		},
		{
			name:     "execution error wrapping coded cause",
			err:      &ExecutionError{ID: "model", Cause: New(ErrCodeInvalidPath, "bad")},
			expected: ErrCodeExecution,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeValidation, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTypedErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "circular",
			err:  &CircularDependencyError{Chain: []string{"a", "b", "c", "a"}},
			want: "CIRCULAR_DEPENDENCY: circular dependency: a -> b -> c -> a",
		},
		{
			name: "missing with range",
			err:  &MissingDependencyError{ID: "api", Dependency: "model", Range: "^1.0.0"},
			want: "MISSING_DEPENDENCY: api requires model@^1.0.0 which is not available",
		},
		{
			name: "conflict",
			err:  &ConflictError{ID: "gorm", With: "sqlc"},
			want: "CONFLICT: gorm conflicts with registered generator sqlc",
		},
		{
			name: "dependents",
			err:  &DependentsExistError{ID: "model", Dependents: []string{"api", "handler"}},
			want: "DEPENDENTS_EXIST: cannot unregister model: required by api, handler",
		},
		{
			name: "not found with version",
			err:  &NotFoundError{ID: "model", Version: "2.0.0"},
			want: "NOT_FOUND: generator model@2.0.0 not found",
		},
		{
			name: "rollback",
			err:  &RollbackError{Action: "file-delete", Target: "a.go", Cause: errors.New("denied")},
			want: "ROLLBACK_FAILED: file-delete a.go: denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("unit crashed")
	err := &ExecutionError{ID: "model", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	var exec *ExecutionError
	if !errors.As(fmt.Errorf("run: %w", err), &exec) {
		t.Fatal("errors.As should find *ExecutionError")
	}
	if exec.ID != "model" {
		t.Errorf("ID = %q, want model", exec.ID)
	}
}
