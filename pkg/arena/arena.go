// Package arena implements the two-player match lifecycle: a FIFO queue, pairing, per-match board preparation, and
// result reconciliation. Every exported operation runs as one store transaction and either applies completely or not
// at all.
package arena

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
	"github.com/argus-labs/arena/pkg/statsd"
	"github.com/argus-labs/arena/pkg/telemetry/sentry"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Arena runs the arena operations against a store.
type Arena struct {
	store  *store.Store
	opts   Options
	log    zerolog.Logger
	tracer trace.Tracer
}

// New creates an Arena. Options are loaded from the environment first and overridden by the non-zero fields of opts.
func New(s *store.Store, opts Options) (*Arena, error) {
	if s == nil {
		return nil, eris.New("store cannot be nil")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load arena config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid arena options")
	}

	log := zerolog.Nop()
	if options.Logger != nil {
		log = *options.Logger
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("arena")
	}

	return &Arena{
		store:  s,
		opts:   options,
		log:    log,
		tracer: tracer,
	}, nil
}

// ReadyPolicy returns the policy in effect.
func (a *Arena) ReadyPolicy() ReadyPolicy {
	return a.opts.ReadyPolicy
}

// update runs fn in a read-write transaction wrapped in a span, an op timing, and error reporting.
func (a *Arena) update(ctx context.Context, op string, caller types.Identity, fn func(tx *store.Tx) error) error {
	return a.run(ctx, op, caller, a.store.Update, fn)
}

// view is update for read-only operations.
func (a *Arena) view(ctx context.Context, op string, caller types.Identity, fn func(tx *store.Tx) error) error {
	return a.run(ctx, op, caller, a.store.View, fn)
}

func (a *Arena) run(
	ctx context.Context,
	op string,
	caller types.Identity,
	txFn func(context.Context, func(*store.Tx) error) error,
	fn func(tx *store.Tx) error,
) error {
	ctx, span := a.tracer.Start(ctx, "arena."+op, trace.WithAttributes(
		attribute.String("arena.caller", string(caller)),
	))
	defer span.End()

	start := time.Now()
	err := txFn(ctx, fn)

	switch {
	case err == nil:
		statsd.EmitOpStat(start, op, outcomeOK)
		a.log.Debug().Str("op", op).Str("caller", string(caller)).Msg("operation applied")
	case IsDomainError(err):
		statsd.EmitOpStat(start, op, outcomeRejected)
		span.SetAttributes(attribute.String("arena.rejection", err.Error()))
		a.log.Debug().Str("op", op).Str("caller", string(caller)).Err(err).Msg("operation rejected")
	default:
		statsd.EmitOpStat(start, op, outcomeError)
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		a.log.Error().Str("op", op).Str("caller", string(caller)).Err(err).Msg("operation failed")
		sentry.CaptureException(ctx, err)
	}
	return err
}

// participantMatch loads a match the caller plays in.
func participantMatch(tx *store.Tx, matchID uint64, caller types.Identity) (types.Match, error) {
	m, ok, err := matches.Get(tx, matchID)
	if err != nil {
		return types.Match{}, err
	}
	if !ok {
		return types.Match{}, eris.Wrapf(ErrMatchNotFound, "match %d", matchID)
	}
	if !m.IsParticipant(caller) {
		return types.Match{}, eris.Wrapf(ErrNotParticipant, "match %d", matchID)
	}
	return m, nil
}

func requirePhase(m types.Match, want types.MatchState) error {
	if m.State != want {
		return eris.Wrapf(ErrInvalidPhase, "match %d is %s, want %s", m.MatchID, m.State, want)
	}
	return nil
}

// putPlayer writes p whether or not the row exists.
func putPlayer(tx *store.Tx, p types.Player) error {
	ok, err := players.Has(tx, p.Identity)
	if err != nil {
		return err
	}
	if ok {
		return players.Update(tx, p.Identity, p)
	}
	return players.Insert(tx, p.Identity, p)
}
