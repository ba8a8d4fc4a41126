package script

import "errors"

// Errors for script host operations.
var (
	// ErrHostClosed is returned when operating on a closed host.
	ErrHostClosed = errors.New("script host is closed")

	// ErrNotFunction is returned when Call names a global that is not a function.
	ErrNotFunction = errors.New("not a function")
)
