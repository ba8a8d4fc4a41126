package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/affinity/internal/affinity"
	"github.com/dshills/affinity/internal/backend"
	"github.com/dshills/affinity/internal/config"
	"github.com/dshills/affinity/internal/logging"
	"github.com/dshills/affinity/internal/loop"
	"github.com/dshills/affinity/internal/script"
	"github.com/dshills/affinity/internal/watch"
)

// stopTimeout bounds how long Run waits for the loop to drain on exit.
const stopTimeout = 5 * time.Second

// Options configures application construction.
type Options struct {
	// Executor receives the backend dispatcher. Defaults to affinity.Default().
	Executor *affinity.Executor

	// LogOutput is where logs are written. Defaults to os.Stderr.
	LogOutput io.Writer

	// Screen replaces the controlling terminal for the terminal backend.
	Screen tcell.Screen
}

// Application owns the affinity backend and the work that runs on it.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	exec   *affinity.Executor
	mode   string

	// Backends; at most one is set.
	loop       *loop.Loop
	term       *backend.Terminal
	termCancel context.CancelFunc

	watcher *watch.Watcher
	host    atomic.Pointer[script.Host]

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	row     int // next terminal output row; affinity-confined
}

// New bootstraps an application from cfg.
func New(cfg config.Config, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	exec := opts.Executor
	if exec == nil {
		exec = affinity.Default()
	}

	a := &Application{
		cfg:    cfg,
		logger: logging.Discard(),
		exec:   exec,
		ready:  make(chan struct{}),
	}
	if err := newBootstrapper(a, opts).bootstrap(); err != nil {
		return nil, err
	}
	return a, nil
}

// Executor returns the executor the backend is installed on.
func (a *Application) Executor() *affinity.Executor {
	return a.exec
}

// Backend returns the name of the active backend.
func (a *Application) Backend() string {
	return a.mode
}

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Host returns the script host, or nil before the script has been loaded.
func (a *Application) Host() *script.Host {
	return a.host.Load()
}

// Run starts the backend and runs the configured script on it. With the
// terminal backend or Watch enabled it keeps running until ctx is done or
// Shutdown is called; otherwise it returns once the script has finished and
// the backend has drained.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)

	switch a.mode {
	case config.BackendLoop:
		if err := a.loop.Start(); err != nil {
			return fmt.Errorf("starting loop: %w", err)
		}
		a.markReady()

	case config.BackendTerminal:
		// The terminal outlives ctx so the script host can be closed on it.
		termCtx, termCancel := context.WithCancel(context.Background())
		a.termCancel = termCancel
		g.Go(func() error {
			defer cancel()
			err := a.term.Run(termCtx, a.handleEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})

	default:
		a.markReady()
	}

	g.Go(func() error {
		defer a.stopBackend()

		select {
		case <-a.ready:
		case <-gctx.Done():
			return nil
		}
		return a.work(gctx)
	})

	err := g.Wait()
	if a.watcher != nil {
		_ = a.watcher.Close()
	}

	stats := a.exec.Stats()
	a.logger.Info("affinity stopped",
		slog.String("backend", a.mode),
		slog.Uint64("inline", stats.Inline),
		slog.Uint64("posted", stats.Posted),
		slog.Uint64("sent", stats.Sent),
		slog.Uint64("failed", stats.Failed),
	)
	return err
}

// Shutdown asks a running application to stop.
func (a *Application) Shutdown() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// work runs the script and the watcher, then closes the host while the
// backend is still accepting work.
func (a *Application) work(ctx context.Context) error {
	if a.cfg.Script != "" {
		host, err := script.NewHost(a.exec,
			script.WithLogger(logging.WithComponent(a.logger, "script")),
			script.WithOutput(a.output),
		)
		if err != nil {
			return err
		}
		a.host.Store(host)
		defer func() {
			if err := host.Close(); err != nil {
				a.logger.Debug("closing script host", slog.Any("error", err))
			}
		}()

		if err := host.DoFile(a.cfg.Script); err != nil {
			if a.watcher == nil {
				return fmt.Errorf("running %s: %w", a.cfg.Script, err)
			}
			a.logger.Error("script failed", slog.String("script", a.cfg.Script), slog.Any("error", err))
		}
	}

	if a.watcher != nil {
		err := a.watcher.Run(ctx, a.reload)
		// Reloads in flight must finish before the host is closed.
		_ = a.watcher.Close()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if a.mode == config.BackendTerminal {
		<-ctx.Done()
	}
	return nil
}

// reload re-runs the script. It runs on the affinity goroutine.
func (a *Application) reload(path string) error {
	host := a.host.Load()
	if host == nil {
		return nil
	}
	if err := host.DoFile(path); err != nil {
		return err
	}
	a.logger.Info("script reloaded", slog.String("script", path))
	return nil
}

func (a *Application) stopBackend() {
	switch {
	case a.loop != nil:
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := a.loop.Stop(ctx); err != nil && !errors.Is(err, loop.ErrNotRunning) {
			a.logger.Warn("stopping loop", slog.Any("error", err))
		}
	case a.termCancel != nil:
		a.termCancel()
	}
}

func (a *Application) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// output prints script log lines. It runs on the affinity goroutine.
func (a *Application) output(line string) {
	if a.term == nil {
		a.logger.Info(line, slog.String("source", "lua"))
		return
	}

	_, height := a.term.Screen().Size()
	if height <= 0 {
		return
	}
	y := a.row % height
	a.term.ClearLine(y)
	a.term.DrawText(0, y, line, tcell.StyleDefault)
	a.term.Show()
	a.row++
}

// handleEvent handles terminal input on the affinity goroutine. Keys are
// published to the script as the "key" property.
func (a *Application) handleEvent(ev tcell.Event) error {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		a.term.Screen().Sync()

	case *tcell.EventKey:
		if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			a.Shutdown()
			return nil
		}
		if host := a.host.Load(); host != nil {
			if err := host.SetProperty("key", ev.Name()); err != nil {
				a.logger.Warn("key handler failed", slog.Any("error", err))
			}
		}
	}
	return nil
}
