package server

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrAddressInUse classifies bind failures caused by another listener.
	ErrAddressInUse = errors.New("address already in use")

	// ErrPermissionDenied classifies bind failures on privileged ports.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotInitialized is returned by Run before a successful Init.
	ErrNotInitialized = errors.New("server socket not initialized")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("server socket already initialized")

	// ErrAlreadyRunning is returned by a second Run.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrPoolStopped is returned when submitting work after Stop.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// BindError reports a failure to bind the listening socket.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Address, e.Err)
}

// Unwrap returns the classification sentinel, if any, and the cause.
func (e *BindError) Unwrap() []error {
	if kind := e.kind(); kind != nil {
		return []error{kind, e.Err}
	}
	return []error{e.Err}
}

func (e *BindError) kind() error {
	switch {
	case errors.Is(e.Err, unix.EADDRINUSE):
		return ErrAddressInUse
	case errors.Is(e.Err, unix.EACCES), errors.Is(e.Err, unix.EPERM):
		return ErrPermissionDenied
	}
	return nil
}

// isResourceError reports whether err is a resource exhaustion failure.
func isResourceError(err error) bool {
	return errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}
