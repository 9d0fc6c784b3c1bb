// Package dispatch writes inbound requests to the llama-cli process, one
// turn at a time.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/llamabridge/internal/channel"
	"github.com/wagiedev/llamabridge/internal/errors"
	"github.com/wagiedev/llamabridge/internal/prompt"
)

// Process is the part of the supervisor the dispatcher needs.
type Process interface {
	EnsureAlive(ctx context.Context) bool
	Write(ctx context.Context, data string) error
	Generation() uint64
}

// Turn is one request written to the process.
type Turn struct {
	ID         string
	Text       string
	SentAt     time.Time
	Generation uint64
}

// Dispatcher accepts one request at a time. The process has no request
// correlation, so a reply is attributed to whichever turn is current when
// it is consumed.
type Dispatcher struct {
	log      *slog.Logger
	process  Process
	out      *channel.ResponseChannel
	template prompt.Template

	dispatchMu sync.Mutex

	turnMu   sync.Mutex
	turn     *Turn
	answered bool
}

// New creates a Dispatcher.
func New(log *slog.Logger, process Process, out *channel.ResponseChannel, template prompt.Template) *Dispatcher {
	return &Dispatcher{
		log:      log.With("component", "dispatcher"),
		process:  process,
		out:      out,
		template: template,
	}
}

// Dispatch wraps text in the chat template and writes it to the process,
// restarting the process first if it is not alive.
//
// It returns errors.ErrEmptyRequest for blank text, errors.ErrProcessUnavailable
// when no process could be started, and *errors.WriteError when the input
// pipe broke. In every failure case the request is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, errors.ErrEmptyRequest
	}

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	if !d.process.EnsureAlive(ctx) {
		d.log.Warn("Dropping request, process unavailable", "text_len", len(text))

		return Turn{}, errors.ErrProcessUnavailable
	}

	// Anything still queued belongs to an earlier turn. Drain clears the
	// signal under the queue lock.
	for _, stale := range d.out.Drain() {
		d.log.Warn("Discarding stale response", "unit_id", stale.ID, "generation", stale.Generation)
	}

	turn := Turn{
		ID:         ulid.Make().String(),
		Text:       text,
		SentAt:     time.Now(),
		Generation: d.process.Generation(),
	}

	d.setTurn(&turn)

	if err := d.process.Write(ctx, d.template.Wrap(text)); err != nil {
		d.log.Warn("Dropping request, write failed", "turn_id", turn.ID, "error", err)
		d.setTurn(nil)

		return Turn{}, err
	}

	d.log.Info("Request dispatched", "turn_id", turn.ID, "generation", turn.Generation)

	return turn, nil
}

func (d *Dispatcher) setTurn(turn *Turn) {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	d.turn = turn
	d.answered = false
}

// Answer marks the current turn as answered. first is true only for the
// first response consumed since the turn was dispatched. ok is false when
// no turn is in flight.
func (d *Dispatcher) Answer() (turn Turn, first bool, ok bool) {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	if d.turn == nil {
		return Turn{}, false, false
	}

	first = !d.answered
	d.answered = true

	return *d.turn, first, true
}

// Outstanding reports whether a dispatched turn has not been answered yet.
func (d *Dispatcher) Outstanding() bool {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	return d.turn != nil && !d.answered
}

// Current returns the turn in flight.
func (d *Dispatcher) Current() (Turn, bool) {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	if d.turn == nil {
		return Turn{}, false
	}

	return *d.turn, true
}
