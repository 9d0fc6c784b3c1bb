package llamabridge

import "github.com/wagiedev/llamabridge/internal/errors"

// Re-export error types from internal package

// LaunchError indicates the executable or the model file was not found.
type LaunchError = errors.LaunchError

// ProcessError indicates the process failed to start or exited unexpectedly.
type ProcessError = errors.ProcessError

// WriteError indicates the process input stream is broken.
type WriteError = errors.WriteError

// ReadTerminationError records why a stream pump stopped reading.
type ReadTerminationError = errors.ReadTerminationError

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrProcessUnavailable indicates no live process exists and recovery failed.
	ErrProcessUnavailable = errors.ErrProcessUnavailable

	// ErrEmptyRequest indicates a request carried no text.
	ErrEmptyRequest = errors.ErrEmptyRequest

	// ErrEmptyPopRace indicates the readiness signal was set with no reply queued.
	ErrEmptyPopRace = errors.ErrEmptyPopRace

	// ErrBridgeClosed indicates the bridge has been closed and cannot be reused.
	ErrBridgeClosed = errors.ErrBridgeClosed

	// ErrResponseTimeout indicates no reply arrived in time.
	ErrResponseTimeout = errors.ErrResponseTimeout

	// ErrTransportClosed indicates the transport was closed.
	ErrTransportClosed = errors.ErrTransportClosed
)
