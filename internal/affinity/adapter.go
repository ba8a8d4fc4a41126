package affinity

// Adapter is a Dispatcher backed by a live affinity Queue.
type Adapter struct {
	queue      Queue
	unobserved UnobservedErrorHandler
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithUnobservedErrorHandler sets the handler that receives errors from
// posted actions and from posts the queue refused.
func WithUnobservedErrorHandler(h UnobservedErrorHandler) AdapterOption {
	return func(a *Adapter) {
		a.unobserved = h
	}
}

// NewAdapter wraps queue as a Dispatcher. It panics with ErrNilQueue if
// queue is nil.
func NewAdapter(queue Queue, opts ...AdapterOption) *Adapter {
	if isNil(queue) {
		panic(ErrNilQueue)
	}
	a := &Adapter{queue: queue}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Post enqueues the action on the affinity goroutine.
func (a *Adapter) Post(action Action) {
	if err := a.TryPost(action); err != nil {
		a.report(err)
	}
}

// TryPost enqueues the action and returns the queue's error if it refused
// the work. Errors from the action itself go to the unobserved handler.
func (a *Adapter) TryPost(action Action) error {
	if action == nil {
		return ErrNilAction
	}
	return a.queue.BeginInvoke(func() {
		if err := call(action); err != nil {
			a.report(err)
		}
	})
}

// Send enqueues the action and blocks until it has run.
func (a *Adapter) Send(action Action) error {
	if action == nil {
		return ErrNilAction
	}
	return a.queue.Invoke(func() error {
		return call(action)
	})
}

// IsCurrent reports whether the caller is the queue's goroutine.
func (a *Adapter) IsCurrent() bool {
	return a.queue.CheckAccess()
}

// Queue returns the wrapped queue.
func (a *Adapter) Queue() Queue {
	return a.queue
}

func (a *Adapter) report(err error) {
	if a.unobserved == nil {
		return
	}
	defer func() { _ = recover() }()
	a.unobserved(err)
}
