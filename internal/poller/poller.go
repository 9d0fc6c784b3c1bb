// Package poller moves finalized response units from the response channel
// to the outbound transport.
package poller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/errors"
)

// Source is the consumer side of a channel.ResponseChannel.
type Source interface {
	Ready() bool
	Pop(ctx context.Context, wait time.Duration) (channel.Unit, bool)
	ClearReady()
	Notify() <-chan struct{}
}

// Delivery is one reply handed to the sink.
type Delivery struct {
	Unit channel.Unit
	// Text is the unit text, or the placeholder when the unit was blank.
	Text        string
	Placeholder bool
}

// Sink receives deliveries. Errors are logged and never stop the poller.
type Sink func(ctx context.Context, d Delivery) error

// Config configures a Poller.
type Config struct {
	Interval    time.Duration
	PopWait     time.Duration
	Placeholder string
}

// Poller consumes one unit per readiness check.
type Poller struct {
	log    *slog.Logger
	source Source
	sink   Sink
	cfg    Config
}

// New creates a Poller.
func New(log *slog.Logger, source Source, sink Sink, cfg Config) *Poller {
	return &Poller{
		log:    log.With("component", "poller"),
		source: source,
		sink:   sink,
		cfg:    cfg,
	}
}

// Run polls until ctx is done. It wakes on every Interval tick and whenever
// the source signals a push, and drains every ready unit on each wake.
// Run returns nil when ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Debug("Poller started", "interval", p.cfg.Interval)
	defer p.log.Debug("Poller stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.source.Notify():
		}

		for p.Poll(ctx) {
		}
	}
}

// Poll delivers at most one unit. It reports whether a unit was delivered.
func (p *Poller) Poll(ctx context.Context) bool {
	if !p.source.Ready() {
		return false
	}

	unit, ok := p.source.Pop(ctx, p.cfg.PopWait)
	if !ok {
		if ctx.Err() != nil {
			return false
		}

		p.log.Warn("Readiness signal without a response, clearing", "error", errors.ErrEmptyPopRace)
		p.source.ClearReady()

		return false
	}

	d := Delivery{Unit: unit, Text: unit.Text}

	if strings.TrimSpace(d.Text) == "" {
		d.Text = p.cfg.Placeholder
		d.Placeholder = true
	}

	if err := p.sink(ctx, d); err != nil {
		p.log.Error("Failed to deliver response", "unit_id", unit.ID, "error", err)
	}

	return true
}
