package loop

import "errors"

// Sentinel errors for the loop package.
var (
	// ErrAlreadyRunning is returned when Start or Run is called on a running loop
	// or before the previous loop goroutine has exited.
	ErrAlreadyRunning = errors.New("loop is already running")

	// ErrNotRunning is returned when work is submitted to a stopped loop.
	ErrNotRunning = errors.New("loop is not running")
)
