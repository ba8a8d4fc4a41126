package affinity

import (
	"errors"
	"fmt"
)

// Sentinel errors for the affinity package.
var (
	// ErrNilDispatcher is returned when installing a nil Dispatcher.
	ErrNilDispatcher = errors.New("affinity: dispatcher must not be nil")

	// ErrNilReactor is returned when installing a nil Reactor.
	ErrNilReactor = errors.New("affinity: reactor must not be nil")

	// ErrNilAction is returned when dispatching a nil Action.
	ErrNilAction = errors.New("affinity: action must not be nil")

	// ErrNilQueue is the panic value of NewAdapter when given a nil Queue.
	ErrNilQueue = errors.New("affinity: queue must not be nil")
)

// InvocationError wraps an error raised by an action executed through RunSync.
// The same wrapper is used whether the action ran inline or on the affinity
// goroutine.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	if e == nil || e.Err == nil {
		return "affinity: invocation failed"
	}
	return "affinity: invocation failed: " + e.Err.Error()
}

// Unwrap returns the original action error.
func (e *InvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PanicError reports a panic recovered while running an action.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("affinity: action panicked: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
