package llamabridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/config"
	"github.com/wagiedev/llamabridge/internal/dispatch"
	"github.com/wagiedev/llamabridge/internal/errors"
	"github.com/wagiedev/llamabridge/internal/journal"
	"github.com/wagiedev/llamabridge/internal/mcp"
	"github.com/wagiedev/llamabridge/internal/poller"
	"github.com/wagiedev/llamabridge/internal/subprocess"
	"github.com/wagiedev/llamabridge/internal/transport"
)

// Version is the bridge version reported by the executable and the MCP server.
const Version = "0.1.0"

// Turn is one request written to the model process.
type Turn = dispatch.Turn

// JournalEntry is one delivered reply recorded in the journal.
type JournalEntry = journal.Entry

// Status is a snapshot of the model process.
type Status = mcp.Status

// Bridge keeps one llama-cli process alive and moves requests from a
// transport into it and framed replies back out.
type Bridge struct {
	log        *slog.Logger
	options    *Options
	out        *channel.ResponseChannel
	supervisor *subprocess.Supervisor
	dispatcher *dispatch.Dispatcher
	poller     *poller.Poller
	journal    *journal.Journal
	transport  config.Transport

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// New creates a Bridge. The process is not started until Start, Dispatch
// or Run is called.
//
// It returns an error for invalid options or when the journal or the
// transport cannot be opened.
func New(opts ...Option) (*Bridge, error) {
	options := applyOptions(opts)

	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	out := channel.New()
	supervisor := subprocess.NewSupervisor(log, options, out)

	b := &Bridge{
		log:        log.With("component", "bridge"),
		options:    options,
		out:        out,
		supervisor: supervisor,
		dispatcher: dispatch.New(log, supervisor, out, options.Template),
	}

	b.poller = poller.New(log, out, b.deliver, poller.Config{
		Interval:    options.PollInterval,
		PopWait:     options.PopWait,
		Placeholder: options.Placeholder,
	})

	if options.Journal.Enabled() {
		j, err := journal.Open(journal.Options{
			Dir:      options.Journal.Dir,
			InMemory: options.Journal.InMemory,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}

		b.journal = j
	}

	t, err := b.newTransport(log)
	if err != nil {
		if b.journal != nil {
			_ = b.journal.Close()
		}

		return nil, err
	}

	b.transport = t

	return b, nil
}

func (b *Bridge) newTransport(log *slog.Logger) (config.Transport, error) {
	if t := b.options.Transport.Instance; t != nil {
		return t, nil
	}

	switch b.options.Transport.Kind {
	case config.TransportMQTT:
		return transport.NewMQTT(log, b.options.Transport.MQTT)
	case config.TransportMCP:
		return mcp.NewServer(log, mcp.ServerOptions{
			Version: Version,
			Timeout: b.options.ResponseTimeout,
			Status:  b.Status,
		}), nil
	default:
		return transport.NewStdio(log, os.Stdin, os.Stdout), nil
	}
}

// Start launches the model process. A launch failure is not fatal: every
// later Dispatch retries the start.
func (b *Bridge) Start(ctx context.Context) error {
	if b.isClosed() {
		return errors.ErrBridgeClosed
	}

	return b.supervisor.Start(ctx)
}

// Dispatch writes one request to the model process, restarting it if needed.
// The reply is delivered to the transport by Run.
func (b *Bridge) Dispatch(ctx context.Context, text string) (Turn, error) {
	if b.isClosed() {
		return Turn{}, errors.ErrBridgeClosed
	}

	return b.dispatcher.Dispatch(ctx, text)
}

// Run serves the transport and delivers replies until ctx is done, the
// transport stops, or the bridge is closed. When the transport stops on its
// own, Run waits up to ResponseTimeout for the reply to the last request.
func (b *Bridge) Run(ctx context.Context) error {
	if b.isClosed() {
		return errors.ErrBridgeClosed
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	g, gctx := errgroup.WithContext(pollCtx)

	g.Go(func() error {
		return b.poller.Run(gctx)
	})

	g.Go(func() error {
		defer stopPolling()

		err := b.transport.Serve(gctx, func(ctx context.Context, text string) error {
			_, err := b.Dispatch(ctx, text)

			return err
		})
		if err != nil {
			return fmt.Errorf("serve transport: %w", err)
		}

		b.awaitIdle(gctx)

		return nil
	})

	return g.Wait()
}

// awaitIdle waits until the current turn has been answered.
func (b *Bridge) awaitIdle(ctx context.Context) {
	if !b.dispatcher.Outstanding() {
		return
	}

	b.log.Debug("Waiting for the last reply", "timeout", b.options.ResponseTimeout)

	deadline := time.NewTimer(b.options.ResponseTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(b.options.PollInterval)
	defer ticker.Stop()

	for b.dispatcher.Outstanding() {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			b.log.Warn("No reply to the last request", "timeout", b.options.ResponseTimeout)

			return
		case <-ticker.C:
		}
	}
}

// deliver journals a reply and publishes it.
func (b *Bridge) deliver(ctx context.Context, d poller.Delivery) error {
	turn, first, ok := b.dispatcher.Answer()

	b.log.Info("Publishing response",
		"unit_id", d.Unit.ID,
		"turn_id", turn.ID,
		"first", first,
		"placeholder", d.Placeholder,
	)

	if !ok {
		b.log.Debug("Response without a dispatched turn", "unit_id", d.Unit.ID)
	}

	if b.journal != nil {
		entry := JournalEntry{
			ID:          d.Unit.ID,
			TurnID:      turn.ID,
			Request:     turn.Text,
			Response:    d.Text,
			Generation:  d.Unit.Generation,
			SentAt:      turn.SentAt,
			AnsweredAt:  time.Now(),
			Placeholder: d.Placeholder,
			First:       first,
		}

		if err := b.journal.Record(ctx, entry); err != nil {
			b.log.Error("Failed to journal response", "unit_id", d.Unit.ID, "error", err)
		}
	}

	return b.transport.Publish(ctx, d.Text)
}

// History returns up to limit journal entries, newest first. It returns
// nil without a journal.
func (b *Bridge) History(ctx context.Context, limit int) ([]JournalEntry, error) {
	if b.journal == nil {
		return nil, nil
	}

	return b.journal.List(ctx, limit)
}

// Status reports the state of the model process.
func (b *Bridge) Status() Status {
	return Status{
		Alive:      b.supervisor.Alive(),
		PID:        b.supervisor.PID(),
		Generation: b.supervisor.Generation(),
		Pending:    b.out.Len(),
	}
}

// Alive reports whether the model process is running.
func (b *Bridge) Alive() bool {
	return b.supervisor.Alive()
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Close closes the transport, terminates the process within the configured
// shutdown bounds and closes the journal.
//
// After Close(), the bridge cannot be reused - create a new one with New().
// This method is safe to call multiple times.
func (b *Bridge) Close() error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.log.Info("Closing bridge")

		if err := b.transport.Close(); err != nil {
			b.log.Warn("Failed to close transport", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.options.ShutdownBound())
		defer cancel()

		closeErr = b.supervisor.Terminate(ctx)

		if b.journal != nil {
			if err := b.journal.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}

		b.log.Info("Bridge closed")
	})

	return closeErr
}
