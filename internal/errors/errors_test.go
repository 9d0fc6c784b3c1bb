package errors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLaunchError(t *testing.T) {
	err := &LaunchError{
		Missing:       "executable",
		SearchedPaths: []string{"/usr/bin/llama-cli", "$PATH"},
	}

	require.Equal(
		t,
		"executable not found in: [/usr/bin/llama-cli $PATH]",
		err.Error(),
	)
	require.True(t, err.IsBridgeError())
}

func TestProcessError_WithUnderlyingError(t *testing.T) {
	root := errors.New("signal: killed")
	err := &ProcessError{
		ExitCode: -1,
		Stderr:   "ignored when Err is set",
		Err:      root,
	}

	require.Equal(t, "process failed (exit -1): signal: killed", err.Error())
	require.ErrorIs(t, err, root)
	require.True(t, err.IsBridgeError())
}

func TestProcessError_WithStderrOnly(t *testing.T) {
	err := &ProcessError{
		ExitCode: 1,
		Stderr:   "failed to load model",
	}

	require.Equal(t, "process failed (exit 1): failed to load model", err.Error())
	require.NoError(t, err.Unwrap())
	require.True(t, err.IsBridgeError())
}

func TestWriteError(t *testing.T) {
	err := &WriteError{Err: io.ErrClosedPipe}

	require.Equal(t, "write to process stdin: io: read/write on closed pipe", err.Error())
	require.ErrorIs(t, err, io.ErrClosedPipe)
	require.True(t, err.IsBridgeError())
}

func TestReadTerminationError(t *testing.T) {
	err := &ReadTerminationError{Stream: "stdout", Err: io.ErrUnexpectedEOF}

	require.Equal(t, "stdout stream terminated: unexpected EOF", err.Error())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var target *ReadTerminationError
	require.ErrorAs(t, error(err), &target)
	require.Equal(t, "stdout", target.Stream)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrProcessUnavailable,
		ErrEmptyRequest,
		ErrEmptyPopRace,
		ErrBridgeClosed,
		ErrResponseTimeout,
		ErrTransportClosed,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				require.NotErrorIs(t, a, b)
			}
		}
	}
}
