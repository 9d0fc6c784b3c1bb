package errors

import (
	"errors"
	"fmt"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*LaunchError)(nil)
	_ BridgeError = (*ProcessError)(nil)
	_ BridgeError = (*WriteError)(nil)
	_ BridgeError = (*ReadTerminationError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrProcessUnavailable indicates no live process exists and recovery failed.
	// The triggering request is dropped.
	ErrProcessUnavailable = errors.New("process unavailable")

	// ErrEmptyRequest indicates a request carried no text after trimming.
	ErrEmptyRequest = errors.New("empty request")

	// ErrEmptyPopRace indicates the readiness signal was set but the queue was empty.
	// It is self-healing and never fatal.
	ErrEmptyPopRace = errors.New("readiness signal set but response queue empty")

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrResponseTimeout indicates no response unit arrived in time.
	ErrResponseTimeout = errors.New("response timeout")

	// ErrTransportClosed indicates the transport was closed.
	ErrTransportClosed = errors.New("transport closed")
)

// LaunchError indicates the executable or the model artifact was not found.
type LaunchError struct {
	// Missing names what could not be located ("executable" or "model").
	Missing       string
	SearchedPaths []string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s not found in: %v", e.Missing, e.SearchedPaths)
}

// IsBridgeError implements BridgeError.
func (e *LaunchError) IsBridgeError() bool { return true }

// ProcessError indicates the process failed to start or exited unexpectedly.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProcessError) IsBridgeError() bool { return true }

// WriteError indicates the process input stream is broken.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to process stdin: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *WriteError) IsBridgeError() bool { return true }

// ReadTerminationError records why a stream pump stopped reading.
// It is treated as normal pump completion.
type ReadTerminationError struct {
	Stream string
	Err    error
}

func (e *ReadTerminationError) Error() string {
	return fmt.Sprintf("%s stream terminated: %v", e.Stream, e.Err)
}

func (e *ReadTerminationError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ReadTerminationError) IsBridgeError() bool { return true }
