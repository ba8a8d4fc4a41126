package affinity

import "runtime/debug"

// Action is a unit of work dispatched to the affinity goroutine.
type Action func() error

// Dispatcher is the capability an affinity backend must provide.
type Dispatcher interface {
	// Post schedules the action to run on the affinity goroutine and returns
	// immediately. The action's error is not reported to the caller.
	Post(action Action)

	// Send schedules the action to run on the affinity goroutine and blocks
	// until it completes. The action's error is returned to the caller.
	Send(action Action) error

	// IsCurrent reports whether the calling goroutine is the affinity goroutine.
	IsCurrent() bool
}

// Queue is the message queue owned by a live affinity goroutine.
// loop.Loop and backend.Terminal implement it.
type Queue interface {
	// BeginInvoke enqueues fn for later execution. It must not block.
	BeginInvoke(fn func()) error

	// Invoke enqueues fn and blocks until it has run, returning its error.
	Invoke(fn func() error) error

	// CheckAccess reports whether the caller is running on the queue's goroutine.
	CheckAccess() bool
}

// UnobservedErrorHandler receives errors from posted actions that nobody waits on.
type UnobservedErrorHandler func(err error)

// call runs the action, converting a panic into a *PanicError.
func call(action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return action()
}
