package app

import (
	"log/slog"

	"github.com/dshills/affinity/internal/affinity"
	"github.com/dshills/affinity/internal/backend"
	"github.com/dshills/affinity/internal/config"
	"github.com/dshills/affinity/internal/logging"
	"github.com/dshills/affinity/internal/loop"
	"github.com/dshills/affinity/internal/watch"
)

// bootstrapper handles component initialization with cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      opts,
		initOrder: make([]string, 0, 3),
	}
}

// bootstrap initializes components in dependency order.
func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		init func() error
	}{
		{"logging", b.initLogging},
		{"backend", b.initBackend},
		{"watcher", b.initWatcher},
	}

	for _, step := range steps {
		if err := step.init(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) initLogging() error {
	cfg := b.app.cfg
	b.app.logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: b.opts.LogOutput,
	})
	return nil
}

// initBackend creates the affinity backend and installs its dispatcher.
// Design mode always selects the pass-through dispatcher.
func (b *bootstrapper) initBackend() error {
	a := b.app
	mode := a.cfg.Backend
	if a.cfg.DesignMode || config.DesignMode() {
		mode = config.BackendPassThrough
	}
	a.mode = mode

	unobserved := affinity.WithUnobservedErrorHandler(func(err error) {
		a.logger.Warn("posted action failed", slog.Any("error", err))
	})

	var d affinity.Dispatcher
	switch mode {
	case config.BackendLoop:
		a.loop = loop.New(
			loop.WithLogger(logging.WithComponent(a.logger, "loop")),
			loop.WithLockOSThread(a.cfg.LockOSThread),
		)
		d = a.loop.Dispatcher(unobserved)

	case config.BackendTerminal:
		termOpts := []backend.TerminalOption{
			backend.WithLogger(logging.WithComponent(a.logger, "terminal")),
			backend.WithOnStart(a.markReady),
		}
		if b.opts.Screen != nil {
			a.term = backend.NewTerminalWithScreen(b.opts.Screen, termOpts...)
		} else {
			term, err := backend.NewTerminal(termOpts...)
			if err != nil {
				return err
			}
			a.term = term
		}
		d = a.term.Dispatcher(unobserved)

	case config.BackendPassThrough:
		d = affinity.PassThrough{}

	default:
		return ErrUnknownBackend
	}

	if err := a.exec.SetDispatcher(d); err != nil {
		return err
	}
	a.logger.Debug("backend installed", slog.String("backend", mode))
	return nil
}

func (b *bootstrapper) initWatcher() error {
	a := b.app
	if !a.cfg.Watch || a.cfg.Script == "" {
		return nil
	}

	w, err := watch.New(a.exec, watch.WithLogger(logging.WithComponent(a.logger, "watch")))
	if err != nil {
		return err
	}
	if err := w.Watch(a.cfg.Script); err != nil {
		_ = w.Close()
		return err
	}
	a.watcher = w
	return nil
}

// cleanup releases initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		switch b.initOrder[i] {
		case "watcher":
			if b.app.watcher != nil {
				_ = b.app.watcher.Close()
				b.app.watcher = nil
			}
		case "backend":
			_ = b.app.exec.SetDispatcher(affinity.PassThrough{})
		}
	}
}
