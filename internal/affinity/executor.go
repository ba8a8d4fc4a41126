package affinity

import (
	"reflect"
	"sync/atomic"
)

// Executor layers affinity-aware dispatch on top of an installed Dispatcher.
// The zero value is not usable; create one with NewExecutor.
type Executor struct {
	dispatcher        atomic.Pointer[dispatcherSlot]
	propertyChanged   atomic.Pointer[Reactor]
	collectionChanged atomic.Pointer[Reactor]

	// Stats
	inline atomic.Uint64
	posted atomic.Uint64
	sent   atomic.Uint64
	failed atomic.Uint64
}

// dispatcherSlot boxes the interface so it can be swapped atomically.
type dispatcherSlot struct {
	d Dispatcher
}

// tryPoster is implemented by dispatchers that can report a refused post.
type tryPoster interface {
	TryPost(action Action) error
}

// NewExecutor creates an executor with PassThrough installed.
func NewExecutor() *Executor {
	return &Executor{}
}

// Dispatcher returns the installed dispatcher, installing PassThrough if
// none has been set yet.
func (e *Executor) Dispatcher() Dispatcher {
	if slot := e.dispatcher.Load(); slot != nil {
		return slot.d
	}
	e.dispatcher.CompareAndSwap(nil, &dispatcherSlot{d: PassThrough{}})
	return e.dispatcher.Load().d
}

// SetDispatcher replaces the installed dispatcher.
// A nil dispatcher, including a typed nil pointer, is rejected and the
// previous one stays installed.
func (e *Executor) SetDispatcher(d Dispatcher) error {
	if isNil(d) {
		return ErrNilDispatcher
	}
	e.dispatcher.Store(&dispatcherSlot{d: d})
	return nil
}

// PostAsync posts the action even when called on the affinity goroutine, so
// it always runs after the current call stack unwinds.
func (e *Executor) PostAsync(action Action) {
	if action == nil {
		return
	}
	e.posted.Add(1)
	e.Dispatcher().Post(action)
}

// PostAsyncAwaitable posts the action and returns a Future that resolves
// with the action's error once it has run.
func (e *Executor) PostAsyncAwaitable(action Action) *Future {
	if action == nil {
		return Completed(ErrNilAction)
	}
	e.posted.Add(1)
	return e.postAwaitable(e.Dispatcher(), action)
}

func (e *Executor) postAwaitable(d Dispatcher, action Action) *Future {
	f := newFuture()
	shim := func() error {
		err := call(action)
		if err != nil {
			e.failed.Add(1)
		}
		f.resolve(err)
		return nil
	}

	if tp, ok := d.(tryPoster); ok {
		if err := tp.TryPost(shim); err != nil {
			e.failed.Add(1)
			f.resolve(err)
		}
		return f
	}
	d.Post(shim)
	return f
}

// Run executes the action inline when called on the affinity goroutine and
// posts it otherwise.
func (e *Executor) Run(action Action) {
	if action == nil {
		return
	}
	d := e.Dispatcher()
	if d.IsCurrent() {
		e.inline.Add(1)
		if err := call(action); err != nil {
			e.failed.Add(1)
		}
		return
	}
	e.posted.Add(1)
	d.Post(action)
}

// RunSync executes the action inline when called on the affinity goroutine
// and sends it otherwise, blocking until it completes.
//
// Any error is returned as *InvocationError on both paths. The affinity check
// comes first so a call made from the affinity goroutine never waits on its
// own queue.
func (e *Executor) RunSync(action Action) error {
	if action == nil {
		return ErrNilAction
	}

	d := e.Dispatcher()
	var err error
	if d.IsCurrent() {
		e.inline.Add(1)
		err = call(action)
	} else {
		e.sent.Add(1)
		err = d.Send(action)
	}

	if err != nil {
		e.failed.Add(1)
		return &InvocationError{Err: err}
	}
	return nil
}

// RunAsync executes the action inline and returns a completed Future when
// called on the affinity goroutine. Otherwise it behaves like
// PostAsyncAwaitable.
func (e *Executor) RunAsync(action Action) *Future {
	if action == nil {
		return Completed(ErrNilAction)
	}

	d := e.Dispatcher()
	if d.IsCurrent() {
		e.inline.Add(1)
		err := call(action)
		if err != nil {
			e.failed.Add(1)
		}
		return Completed(err)
	}
	e.posted.Add(1)
	return e.postAwaitable(d, action)
}

// Stats returns dispatch counters for this executor.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Inline: e.inline.Load(),
		Posted: e.posted.Load(),
		Sent:   e.sent.Load(),
		Failed: e.failed.Load(),
	}
}

// ResetStats resets all counters to zero.
func (e *Executor) ResetStats() {
	e.inline.Store(0)
	e.posted.Store(0)
	e.sent.Store(0)
	e.failed.Store(0)
}

// ExecutorStats contains dispatch counters for an Executor.
type ExecutorStats struct {
	// Inline is the number of actions run directly on the affinity goroutine.
	Inline uint64

	// Posted is the number of actions handed to Dispatcher.Post.
	Posted uint64

	// Sent is the number of actions handed to Dispatcher.Send.
	Sent uint64

	// Failed counts actions that returned an error or panicked, where the
	// executor observed the outcome.
	Failed uint64
}

// isNil reports whether v is nil or an interface holding a nil pointer,
// map, slice, func or channel.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
