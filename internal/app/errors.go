// Package app wires configuration, logging and the selected affinity backend
// into a runnable application.
package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates Run was called while the application runs.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrUnknownBackend indicates the configured backend has no implementation.
	ErrUnknownBackend = errors.New("unknown backend")
)

// InitError reports which component failed during bootstrap.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
