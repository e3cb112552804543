package store

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Subscriber receives every committed transaction. It is called while the writer lock is held, in commit order, so it
// must hand work off instead of blocking.
type Subscriber func(ctx context.Context, commit Commit)

// Store runs transactions against a Backend.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	clock   func() time.Time
	last    time.Time
	log     zerolog.Logger

	subscribers []Subscriber
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		clock:       time.Now,
		log:         zerolog.Nop(),
		subscribers: make([]Subscriber, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn in a read-write transaction. If fn returns an error nothing is written and the error is returned
// unchanged, so callers can match domain errors with eris.Is.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "transaction not started")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(ctx, s.backend, s.nextTimestamp(), true)
	if err := fn(tx); err != nil {
		return err
	}

	batch := tx.batch()
	if batch.Empty() {
		return nil
	}
	if err := s.backend.Apply(ctx, batch); err != nil {
		return eris.Wrap(err, "failed to commit transaction")
	}

	s.log.Debug().
		Time("timestamp", tx.now).
		Int("writes", len(batch.Writes)).
		Int("changes", len(tx.changes)).
		Msg("transaction committed")

	if len(tx.changes) > 0 {
		commit := Commit{Timestamp: tx.now, Changes: tx.changes}
		for _, sub := range s.subscribers {
			sub(ctx, commit)
		}
	}
	return nil
}

// View runs fn in a read-only transaction. Writes made through the Tx fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "transaction not started")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(newTx(ctx, s.backend, s.clock().Truncate(time.Microsecond), false))
}

// Subscribe registers sub for every future commit.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// nextTimestamp returns a timestamp strictly after the previous one at microsecond resolution. Must be called with
// the writer lock held.
func (s *Store) nextTimestamp() time.Time {
	now := s.clock().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to stamp transactions.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}
