package loop

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/affinity/internal/affinity"
	"github.com/dshills/affinity/internal/goid"
)

const tracerName = "github.com/dshills/affinity/internal/loop"

// Work item kinds, used as span names.
const (
	kindPost = "post"
	kindSend = "send"
)

// Loop is an event loop that executes work items on one goroutine.
type Loop struct {
	id           string
	logger       *slog.Logger
	tracer       trace.Tracer
	lockOSThread bool
	panicHandler PanicHandler

	// State
	mu      sync.Mutex // protects queue, running and stop
	queue   []task
	running bool
	stop    chan struct{}
	done    chan struct{}
	wake    chan struct{}
	owner   atomic.Uint64

	// Stats
	enqueued    atomic.Uint64
	executed    atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	rejected    atomic.Uint64
	totalTimeNs atomic.Int64
}

// task is a single queued work item.
type task struct {
	kind     string
	run      func() error
	reply    chan error
	enqueued time.Time
}

// New creates a stopped loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		id:     uuid.NewString(),
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("loop", l.id))
	return l
}

// ID returns the loop's identifier.
func (l *Loop) ID() string {
	return l.id
}

// Dispatcher returns an affinity.Dispatcher backed by this loop.
func (l *Loop) Dispatcher(opts ...affinity.AdapterOption) *affinity.Adapter {
	return affinity.NewAdapter(l, opts...)
}

// Start runs the loop on a new goroutine. It returns once the loop goroutine
// is accepting work.
func (l *Loop) Start() error {
	if err := l.begin(); err != nil {
		return err
	}

	ready := make(chan struct{})
	go l.serve(context.Background(), ready)
	<-ready
	return nil
}

// Run makes the calling goroutine the loop goroutine. It returns nil after
// Stop, or ctx.Err() when ctx is cancelled. Work queued before either event
// is still executed.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.begin(); err != nil {
		return err
	}
	l.serve(ctx, nil)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Stop stops accepting work, waits for queued items to finish and for the
// loop goroutine to exit, or until ctx is done.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	if l.CheckAccess() {
		// Called from a work item; the loop exits once the item returns.
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the loop accepts work.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// BeginInvoke queues fn for execution on the loop goroutine. It never blocks.
func (l *Loop) BeginInvoke(fn func()) error {
	return l.enqueue(task{
		kind: kindPost,
		run: func() error {
			fn()
			return nil
		},
	})
}

// Invoke queues fn and waits for it to finish, returning its error. A panic
// in fn is returned as *affinity.PanicError. Called from the loop goroutine,
// fn runs inline.
func (l *Loop) Invoke(fn func() error) error {
	if l.CheckAccess() {
		return l.execute(task{kind: kindSend, run: fn, enqueued: time.Now()})
	}

	reply := make(chan error, 1)
	if err := l.enqueue(task{kind: kindSend, run: fn, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// CheckAccess reports whether the caller is the loop goroutine.
func (l *Loop) CheckAccess() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Current()
}

func (l *Loop) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}
	// The previous loop goroutine may still be finishing the item that
	// called Stop.
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrAlreadyRunning
		}
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	return nil
}

func (l *Loop) enqueue(t task) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrNotRunning
	}
	t.enqueued = time.Now()
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	l.enqueued.Add(1)
	select {
	case l.wake <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
	return nil
}

// serve is the loop body. ready, if non-nil, is closed once the owner is set.
func (l *Loop) serve(ctx context.Context, ready chan struct{}) {
	if l.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	self := goid.Current()
	l.owner.Store(self)
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.mu.Unlock()
	if ready != nil {
		close(ready)
	}
	l.logger.Debug("loop started", slog.Bool("lock_os_thread", l.lockOSThread))

	defer func() {
		l.owner.CompareAndSwap(self, 0)
		close(done)
		l.logger.Debug("loop stopped", slog.Uint64("executed", l.executed.Load()))
	}()

	for {
		l.drain()

		select {
		case <-l.wake:
		case <-stop:
			l.drain()
			return
		case <-ctx.Done():
			l.mu.Lock()
			if l.running {
				l.running = false
				close(l.stop)
			}
			l.mu.Unlock()
			l.drain()
			return
		}
	}
}

// drain executes queued items until the queue is empty.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue[0] = task{}
		l.queue = l.queue[1:]
		l.mu.Unlock()

		err := l.execute(t)
		if t.reply != nil {
			t.reply <- err
		}
	}
}

// execute runs one work item with panic recovery inside a span.
func (l *Loop) execute(t task) (err error) {
	_, span := l.tracer.Start(context.Background(), "affinity.loop."+t.kind,
		trace.WithAttributes(
			attribute.String("affinity.loop.id", l.id),
			attribute.Int64("affinity.loop.wait_us", time.Since(t.enqueued).Microseconds()),
		),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			l.panicked.Add(1)
			err = &affinity.PanicError{Value: r, Stack: stack}
			l.logger.Error("work item panicked", slog.String("kind", t.kind), slog.Any("panic", r))
			if l.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					l.panicHandler(r, stack)
				}()
			}
		}

		l.executed.Add(1)
		l.totalTimeNs.Add(time.Since(start).Nanoseconds())
		if err != nil {
			l.failed.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return t.run()
}

// QueueDepth returns the number of items waiting to run.
func (l *Loop) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stats returns loop statistics.
func (l *Loop) Stats() Stats {
	executed := l.executed.Load()
	totalNs := l.totalTimeNs.Load()

	var avgNs int64
	if executed > 0 {
		avgNs = totalNs / int64(executed)
	}

	return Stats{
		Enqueued:      l.enqueued.Load(),
		Executed:      executed,
		Failed:        l.failed.Load(),
		Panicked:      l.panicked.Load(),
		Rejected:      l.rejected.Load(),
		QueueDepth:    l.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// Stats contains statistics for a loop.
type Stats struct {
	// Enqueued is the number of items accepted from other goroutines.
	Enqueued uint64

	// Executed is the number of items run, including inline Invoke calls.
	Executed uint64

	// Failed is the number of items that returned an error or panicked.
	Failed uint64

	// Panicked is the number of items that panicked.
	Panicked uint64

	// Rejected is the number of submissions refused because the loop was stopped.
	Rejected uint64

	// QueueDepth is the number of items waiting to run.
	QueueDepth int

	// TotalDuration is the cumulative time spent executing items.
	TotalDuration time.Duration

	// AvgDuration is the average execution time per item.
	AvgDuration time.Duration
}
