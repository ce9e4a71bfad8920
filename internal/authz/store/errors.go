package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates that no rule has the requested id.
	ErrNotFound = errors.New("permission rule not found")

	// ErrInvalidRule indicates a rule that fails validation.
	ErrInvalidRule = errors.New("invalid permission rule")

	// ErrConflict indicates a write that collides with an existing rule.
	ErrConflict = errors.New("permission rule conflict")

	// ErrUnavailable indicates that the backing store rejected the call
	// without trying, for example because its circuit breaker is open.
	ErrUnavailable = errors.New("permission store unavailable")
)

// StoreError describes a failed store operation.
type StoreError struct {
	Op   string
	Role string
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	var sb strings.Builder
	sb.WriteString("store: ")
	sb.WriteString(e.Op)
	if e.Role != "" {
		fmt.Fprintf(&sb, " role=%q", e.Role)
	}
	if e.ID != "" {
		fmt.Fprintf(&sb, " id=%q", e.ID)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)
	return ok || errors.Is(e.Err, target)
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
