// Package backend provides a terminal event loop that serves as an affinity
// goroutine.
//
// The goroutine that calls Terminal.Run polls tcell for input and also runs
// queued work items, so screen access from background goroutines is marshalled
// through BeginInvoke and Invoke (or an affinity.Executor with the terminal
// installed) instead of locks.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/affinity/internal/affinity"
	"github.com/dshills/affinity/internal/goid"
)

// Sentinel errors for the backend package.
var (
	// ErrQuit is returned by an EventHandler to end Run normally.
	ErrQuit = errors.New("quit requested")

	// ErrNotRunning is returned when work is submitted while Run is not active.
	ErrNotRunning = errors.New("terminal is not running")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("terminal is already running")
)

// EventHandler receives terminal input events on the affinity goroutine.
type EventHandler func(ev tcell.Event) error

// wakeSignal is the payload of the interrupt used to wake the poll loop.
type wakeSignal struct{}

// Terminal implements affinity.Queue on top of a tcell screen.
type Terminal struct {
	screen  tcell.Screen
	logger  *slog.Logger
	onStart func()

	mu      sync.Mutex // protects queue and running
	queue   []work
	running bool
	quit    atomic.Bool
	owner   atomic.Uint64

	// Stats
	executed atomic.Uint64
	events   atomic.Uint64
}

type work struct {
	run   func() error
	reply chan error
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithLogger sets the logger for the terminal loop.
func WithLogger(logger *slog.Logger) TerminalOption {
	return func(t *Terminal) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithOnStart sets a function called on the terminal goroutine once the
// screen is initialized and before the first event is polled.
func WithOnStart(fn func()) TerminalOption {
	return func(t *Terminal) {
		t.onStart = fn
	}
}

// NewTerminal creates a terminal backend on the process's controlling terminal.
func NewTerminal(opts ...TerminalOption) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewTerminalWithScreen(screen, opts...), nil
}

// NewTerminalWithScreen creates a terminal backend on an existing screen.
// Tests pass a tcell.SimulationScreen.
func NewTerminalWithScreen(screen tcell.Screen, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		screen: screen,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dispatcher returns an affinity.Dispatcher backed by this terminal.
func (t *Terminal) Dispatcher(opts ...affinity.AdapterOption) *affinity.Adapter {
	return affinity.NewAdapter(t, opts...)
}

// Screen returns the underlying tcell screen. Only use it on the affinity
// goroutine.
func (t *Terminal) Screen() tcell.Screen {
	return t.screen
}

// Run initializes the screen and runs the event loop on the calling
// goroutine until the handler returns ErrQuit, Stop is called or ctx is done.
// Work submitted before Run starts polling is kept and executed.
func (t *Terminal) Run(ctx context.Context, handler EventHandler) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.running = true
	t.quit.Store(false)
	t.mu.Unlock()

	if err := t.screen.Init(); err != nil {
		t.shutdown(err)
		return err
	}
	t.screen.EnablePaste()

	t.owner.Store(goid.Current())
	t.logger.Debug("terminal loop started")

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-stopWatch:
		}
	}()

	defer func() {
		close(stopWatch)
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.drain()
		t.owner.Store(0)
		t.screen.Fini()
		t.logger.Debug("terminal loop stopped", slog.Uint64("executed", t.executed.Load()))
	}()

	if t.onStart != nil {
		t.onStart()
	}

	for {
		t.drain()
		if t.quit.Load() {
			return ctx.Err()
		}

		ev := t.screen.PollEvent()
		if ev == nil {
			return nil
		}

		if intr, ok := ev.(*tcell.EventInterrupt); ok {
			if _, wake := intr.Data().(wakeSignal); wake {
				continue
			}
		}

		t.events.Add(1)
		if handler == nil {
			continue
		}
		if herr := t.handle(handler, ev); herr != nil {
			if errors.Is(herr, ErrQuit) {
				return nil
			}
			return herr
		}
	}
}

// Stop asks Run to return after the current event.
func (t *Terminal) Stop() {
	t.quit.Store(true)
	t.wakeUp()
}

// IsRunning reports whether the terminal accepts work.
func (t *Terminal) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// BeginInvoke queues fn to run on the terminal goroutine.
func (t *Terminal) BeginInvoke(fn func()) error {
	return t.enqueue(work{run: func() error {
		fn()
		return nil
	}})
}

// Invoke runs fn on the terminal goroutine and waits for it. Called from the
// terminal goroutine, fn runs inline.
func (t *Terminal) Invoke(fn func() error) error {
	if t.CheckAccess() {
		return t.execute(fn)
	}

	reply := make(chan error, 1)
	if err := t.enqueue(work{run: fn, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// CheckAccess reports whether the caller is the goroutine running Run.
func (t *Terminal) CheckAccess() bool {
	owner := t.owner.Load()
	return owner != 0 && owner == goid.Current()
}

// DrawText writes text at (x, y) in the given style. It must be called on the
// terminal goroutine; call Show to flush.
func (t *Terminal) DrawText(x, y int, text string, style tcell.Style) {
	width, height := t.screen.Size()
	if y < 0 || y >= height {
		return
	}
	for _, r := range text {
		if x >= width {
			return
		}
		if x >= 0 {
			t.screen.SetContent(x, y, r, nil, style)
		}
		x++
	}
}

// ClearLine blanks row y. It must be called on the terminal goroutine.
func (t *Terminal) ClearLine(y int) {
	width, _ := t.screen.Size()
	for x := 0; x < width; x++ {
		t.screen.SetContent(x, y, ' ', nil, tcell.StyleDefault)
	}
}

// Show flushes pending drawing to the screen.
func (t *Terminal) Show() {
	t.screen.Show()
}

// Stats returns counters for executed work items and delivered input events.
func (t *Terminal) Stats() (executed, events uint64) {
	return t.executed.Load(), t.events.Load()
}

func (t *Terminal) enqueue(w work) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.queue = append(t.queue, w)
	t.mu.Unlock()

	t.wakeUp()
	return nil
}

// wakeUp interrupts PollEvent. When tcell's event queue is full the loop is
// busy anyway and drains work after each event, so a dropped wake-up is fine.
func (t *Terminal) wakeUp() {
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(wakeSignal{}))
}

func (t *Terminal) drain() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.queue = nil
			t.mu.Unlock()
			return
		}
		w := t.queue[0]
		t.queue[0] = work{}
		t.queue = t.queue[1:]
		t.mu.Unlock()

		err := t.execute(w.run)
		if w.reply != nil {
			w.reply <- err
		}
	}
}

func (t *Terminal) execute(fn func() error) (err error) {
	defer func() {
		t.executed.Add(1)
		if r := recover(); r != nil {
			err = &affinity.PanicError{Value: r, Stack: debug.Stack()}
			t.logger.Error("work item panicked", slog.Any("panic", r))
		}
	}()
	return fn()
}

func (t *Terminal) handle(handler EventHandler, ev tcell.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event handler panicked", slog.Any("panic", r))
			err = &affinity.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return handler(ev)
}

// shutdown stops accepting work and fails anything still queued with err.
func (t *Terminal) shutdown(err error) {
	t.mu.Lock()
	t.running = false
	pending := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, w := range pending {
		if w.reply != nil {
			w.reply <- err
		}
	}
}
