package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/llamabridge/internal/errors"
)

func TestStdio_ServeDeliversLinesInOrder(t *testing.T) {
	in := strings.NewReader("forward\n\n  \nturn left  \nstop")
	tr := NewStdio(slog.Default(), in, io.Discard)

	var got []string

	err := tr.Serve(context.Background(), func(_ context.Context, text string) error {
		got = append(got, text)

		return nil
	})

	require.NoError(t, err)
	require.Equal(t, []string{"forward", "turn left", "stop"}, got)
}

func TestStdio_HandlerErrorsDoNotStopServe(t *testing.T) {
	tr := NewStdio(slog.Default(), strings.NewReader("a\nb\n"), io.Discard)

	var calls int

	err := tr.Serve(context.Background(), func(context.Context, string) error {
		calls++

		return errors.ErrProcessUnavailable
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestStdio_ServeStopsOnCancelAndClose(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	tr := NewStdio(slog.Default(), reader, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- tr.Serve(ctx, func(context.Context, string) error { return nil })
	}()

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	go func() {
		errCh <- tr.Serve(context.Background(), func(context.Context, string) error { return nil })
	}()

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestStdio_ServeReportsReadErrors(t *testing.T) {
	reader, writer := io.Pipe()
	tr := NewStdio(slog.Default(), reader, io.Discard)

	require.NoError(t, writer.CloseWithError(stderrors.New("tty gone")))

	err := tr.Serve(context.Background(), func(context.Context, string) error { return nil })
	require.ErrorContains(t, err, "tty gone")
}

func TestStdio_Publish(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)

	tr := NewStdio(slog.Default(), strings.NewReader(""), lockedWriter{&mu, &buf})

	require.NoError(t, tr.Publish(context.Background(), "0x01"))
	require.NoError(t, tr.Publish(context.Background(), "line one\nline two"))
	require.Equal(t, "0x01\nline one\nline two\n", buf.String())

	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.Publish(context.Background(), "late"), errors.ErrTransportClosed)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}
