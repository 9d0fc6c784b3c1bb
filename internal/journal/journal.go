// Package journal records every delivered reply in a badger store so past
// turns can be inspected after the fact.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "turn/"

// Entry is one delivered reply and the request it answered.
type Entry struct {
	// ID is the response unit ID. ULIDs sort by creation time.
	ID          string    `json:"id"`
	TurnID      string    `json:"turn_id,omitempty"`
	Request     string    `json:"request,omitempty"`
	Response    string    `json:"response"`
	Generation  uint64    `json:"generation"`
	SentAt      time.Time `json:"sent_at,omitzero"`
	AnsweredAt  time.Time `json:"answered_at"`
	Placeholder bool      `json:"placeholder,omitempty"`
	// First is false for extra replies that arrived for an already answered turn.
	First bool `json:"first"`
}

// Options configures a Journal.
type Options struct {
	// Dir is the badger data directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory.
	InMemory bool
	// Logger receives badger's warnings and errors. If nil, they are dropped.
	Logger *slog.Logger
}

// Journal is an append-only log of entries.
type Journal struct {
	db *badger.DB
}

// Open opens or creates a journal.
func Open(opts Options) (*Journal, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log: opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record stores e under its ID.
func (j *Journal) Record(_ context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("journal: entry ID is required")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+e.ID), data)
	})
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *Journal) List(_ context.Context, limit int) ([]Entry, error) {
	var entries []Entry

	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key.
		for it.Seek([]byte(keyPrefix + "\xff")); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			if limit > 0 && len(entries) == limit {
				return nil
			}

			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode entry %q: %w", it.Item().Key(), err)
			}

			entries = append(entries, e)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

// badgerLogger forwards badger warnings and errors to slog and drops the rest.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	if l.log != nil {
		l.log.Error(fmt.Sprintf(f, v...), "component", "journal")
	}
}

func (l badgerLogger) Warningf(f string, v ...any) {
	if l.log != nil {
		l.log.Warn(fmt.Sprintf(f, v...), "component", "journal")
	}
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
