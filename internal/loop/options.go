package loop

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// PanicHandler is called when a work item panics on the loop goroutine.
type PanicHandler func(panicValue any, stack []byte)

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger for loop lifecycle and failure messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer used to wrap each work item in a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loop) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// WithLockOSThread pins the loop goroutine to its OS thread while it runs.
// Toolkits that require a fixed OS thread for UI calls need this.
func WithLockOSThread(lock bool) Option {
	return func(l *Loop) {
		l.lockOSThread = lock
	}
}

// WithPanicHandler sets the handler for panics in work items.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		l.panicHandler = h
	}
}

// WithID overrides the generated loop id.
func WithID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.id = id
		}
	}
}
