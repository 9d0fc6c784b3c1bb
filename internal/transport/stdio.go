package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/errors"
)

// Stdio reads one request per input line and writes one reply per Publish.
type Stdio struct {
	log    *slog.Logger
	in     io.Reader
	out    io.Writer
	mu     sync.Mutex // protects out
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once
}

// Compile-time verification that Stdio implements config.Transport.
var _ config.Transport = (*Stdio)(nil)

// NewStdio creates a transport over in and out.
func NewStdio(log *slog.Logger, in io.Reader, out io.Writer) *Stdio {
	return &Stdio{
		log:  log.With("component", "stdio_transport"),
		in:   in,
		out:  out,
		done: make(chan struct{}),
	}
}

// Serve hands every non-blank input line to handle, in order. It returns
// nil at end of input or when ctx is done.
func (s *Stdio) Serve(ctx context.Context, handle config.RequestHandler) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}

		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read input: %w", err)
				}

				s.log.Debug("Input closed")

				return nil
			}

			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if err := handle(ctx, text); err != nil {
				s.log.Warn("Request dropped", "error", err)
			}
		}
	}
}

// Publish writes text followed by a newline.
func (s *Stdio) Publish(_ context.Context, text string) error {
	if s.closed.Load() {
		return errors.ErrTransportClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.out, text+"\n"); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	return nil
}

// Close stops Serve. The underlying reader and writer are left open.
func (s *Stdio) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})

	return nil
}
