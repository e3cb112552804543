package arena

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
	"github.com/argus-labs/arena/pkg/statsd"
)

// JoinResult is the outcome of a join.
type JoinResult struct {
	// Player is the caller's row after the join.
	Player types.Player `json:"player"`

	// Match is the match formed by this join, if any. It need not involve the caller.
	Match *types.Match `json:"match,omitempty"`
}

// Join registers the caller, enqueues them if they are not queued yet, and attempts one pairing. Joining while
// already queued keeps the caller's existing queue position.
func (a *Arena) Join(ctx context.Context, caller types.Identity) (JoinResult, error) {
	var result JoinResult
	err := a.update(ctx, "join", caller, func(tx *store.Tx) error {
		p, ok, err := players.Get(tx, caller)
		if err != nil {
			return err
		}
		switch {
		case !ok:
			p = types.Player{Identity: caller, State: types.PlayerStateInQueue}
			if err := players.Insert(tx, caller, p); err != nil {
				return err
			}
		case p.InMatch():
			return eris.Wrapf(ErrAlreadyInMatch, "%s", caller)
		case p.CurrentMatchID != nil:
			p.CurrentMatchID = nil
			if err := players.Update(tx, caller, p); err != nil {
				return err
			}
		}

		queued, err := queue.Has(tx, caller)
		if err != nil {
			return err
		}
		if !queued {
			seq, err := tx.NextID(seqQueue)
			if err != nil {
				return err
			}
			entry := types.QueueEntry{Identity: caller, QueuedAt: tx.Now().UnixMicro(), Seq: seq}
			if err := queue.Insert(tx, caller, entry); err != nil {
				return err
			}
		}

		m, err := tryPair(tx)
		if err != nil {
			return err
		}

		p, _, err = players.Get(tx, caller)
		if err != nil {
			return err
		}
		result = JoinResult{Player: p, Match: m}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	if result.Match != nil {
		statsd.Count("matches.formed")
		a.log.Info().
			Uint64("match_id", result.Match.MatchID).
			Str("player1", string(result.Match.Player1)).
			Str("player2", string(result.Match.Player2)).
			Uint64("battle_seed", result.Match.BattleSeed).
			Msg("match formed")
	}
	return result, nil
}

// Leave removes the caller from the queue. It succeeds whether or not the caller was queued and never affects a
// match in progress.
func (a *Arena) Leave(ctx context.Context, caller types.Identity) error {
	return a.update(ctx, "leave", caller, func(tx *store.Tx) error {
		_, err := queue.Delete(tx, caller)
		return err
	})
}
