// Package loop provides a channel-backed event loop that owns a single
// affinity goroutine.
//
// Work items submitted from any goroutine are queued in FIFO order and
// executed one at a time on the loop goroutine. The queue is unbounded, so
// BeginInvoke never blocks the producer.
//
// A Loop can own a goroutine of its own:
//
//	l := loop.New(loop.WithLogger(logger))
//	if err := l.Start(); err != nil {
//	    return err
//	}
//	defer l.Stop(context.Background())
//
// or take over the calling goroutine, which is how a main-thread UI runs:
//
//	err := l.Run(ctx)
//
// Loop implements affinity.Queue. Use Dispatcher to obtain an
// affinity.Dispatcher for it.
//
// Every work item runs inside an OpenTelemetry span. Without a configured
// tracer provider the spans are no-ops.
package loop
