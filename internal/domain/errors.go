package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrStoreUnavailable = errors.New("memory store unavailable")

// SchemaValidationError reports a structured payload from the reasoning
// collaborator that could not be decoded into the requested schema.
type SchemaValidationError struct {
	Schema  string
	Payload string
	Err     error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema %s: invalid payload: %v", e.Schema, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

type ExecutionError struct {
	Command    string
	ExitStatus int
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execute %q: exit %d: %v", e.Command, e.ExitStatus, e.Err)
	}
	return fmt.Sprintf("execute %q: exit %d", e.Command, e.ExitStatus)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execute %q: timed out after %s", e.Command, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

// TransitionError is fatal to the mission that raised it.
type TransitionError struct {
	From Node
	Dst  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s: unrecognized destination %q", e.From, e.Dst)
}

// GraphCycleError is recovered by falling back to declaration order.
type GraphCycleError struct {
	Remaining []string
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("task graph has a cycle through %v", e.Remaining)
}

func IsSchemaError(err error) bool {
	var se *SchemaValidationError
	return errors.As(err, &se)
}
