package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a node emits a trigger it has no edge for
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when an edge's guard rejects the produced checkpoint
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrInvalidGraph is returned when a transition table fails validation
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrInvalidState is returned when an operation is not allowed at the thread's current node
	ErrInvalidState = errors.New("invalid state")

	// ErrUnknownThread is returned when no checkpoint exists for a thread
	ErrUnknownThread = errors.New("unknown thread")

	// ErrPersistence is returned when a checkpoint could not be read or written
	ErrPersistence = errors.New("persistence failure")
)

// InvalidStateError reports an operation attempted at the wrong node
type InvalidStateError struct {
	ThreadID string
	Node     State
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s thread %s at node %s", ErrInvalidState, e.Op, e.ThreadID, e.Node)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// UnknownThreadError reports a thread identifier with no checkpoint
type UnknownThreadError struct {
	ThreadID string
}

func (e *UnknownThreadError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownThread, e.ThreadID)
}

func (e *UnknownThreadError) Is(target error) bool {
	return target == ErrUnknownThread
}

// PersistenceError wraps a checkpoint store failure. The step that produced
// the unsaved state is discarded.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s checkpoint for thread %s: %v", ErrPersistence, e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
