package affinity

import (
	"context"
	"sync"
)

// Future is the pending result of an action dispatched asynchronously.
// It is resolved exactly once.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a Future that is already resolved with err.
func Completed(err error) *Future {
	f := newFuture()
	f.resolve(err)
	return f
}

// resolve completes the future. Later calls are ignored.
func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed once the action has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has been resolved.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the action's error once the future is resolved.
// It returns nil while the future is still pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the action finishes or ctx is done.
// Cancelling ctx stops the wait, not the action.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
