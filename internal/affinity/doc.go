// Package affinity schedules work onto a single designated goroutine, the
// affinity goroutine, which typically owns a UI or terminal event loop.
//
// # Dispatchers
//
// A Dispatcher is the primitive capability a backend provides:
//
//   - Post schedules an action and returns immediately.
//   - Send schedules an action and blocks until it has run, returning its error.
//   - IsCurrent reports whether the caller is the affinity goroutine.
//
// Two implementations are provided:
//
//   - PassThrough: runs everything inline on the caller. Used when there is no
//     affinity goroutine (tests, headless tools, design mode).
//
//   - Adapter: wraps a Queue such as loop.Loop or backend.Terminal.
//
// # Executor
//
// An Executor holds the installed Dispatcher and layers affinity-aware
// operations on top of it:
//
//	exec := affinity.NewExecutor()
//	if err := exec.SetDispatcher(affinity.NewAdapter(l)); err != nil {
//	    return err
//	}
//
//	exec.Run(func() error { return view.Refresh() })        // inline or post
//	err := exec.RunSync(func() error { return view.Save() }) // inline or send
//	f := exec.RunAsync(func() error { return view.Load() })  // inline or future
//	err = f.Wait(ctx)
//
// The package-level functions operate on a process-wide executor returned by
// Default. It starts out with PassThrough installed.
//
// # Errors
//
// RunSync returns action errors wrapped in *InvocationError on both the
// inline and cross-goroutine paths, so callers can't tell them apart.
// Futures carry the action's error unchanged. Panics inside an action are
// recovered and reported as *PanicError.
//
// Post and PostAsync are fire-and-forget: an action error on those paths has
// no listener other than an optional UnobservedErrorHandler.
package affinity
