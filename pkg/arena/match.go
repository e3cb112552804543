package arena

import (
	"context"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
	"github.com/argus-labs/arena/pkg/statsd"
)

// MarkReady records the caller's readiness for a match in preparation and returns the match afterwards.
//
// Under ReadyPolicyBoth the match moves to battle_ready once both participants are marked; isReady=false withdraws
// the caller's mark. Under ReadyPolicyEither the first isReady=true moves the match and isReady=false does nothing;
// this is the legacy single-mark behaviour, selected with ARENA_READY_POLICY=either.
func (a *Arena) MarkReady(
	ctx context.Context,
	matchID uint64,
	caller types.Identity,
	isReady bool,
) (types.Match, error) {
	var out types.Match
	err := a.update(ctx, "mark_ready", caller, func(tx *store.Tx) error {
		m, err := participantMatch(tx, matchID, caller)
		if err != nil {
			return err
		}
		if err := requirePhase(m, types.MatchStatePreparation); err != nil {
			return err
		}

		start := false
		switch a.opts.ReadyPolicy {
		case ReadyPolicyEither:
			start = isReady
		case ReadyPolicyBoth:
			start, err = markReady(tx, m, caller, isReady)
			if err != nil {
				return err
			}
		case ReadyPolicyUndefined:
		}

		if start {
			m.State = types.MatchStateBattleReady
			if err := matches.Update(tx, m.MatchID, m); err != nil {
				return err
			}
			if err := clearReadyMarks(tx, m.MatchID); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return types.Match{}, err
	}
	if out.State == types.MatchStateBattleReady {
		a.log.Info().Uint64("match_id", out.MatchID).Msg("match ready for battle")
	}
	return out, nil
}

// markReady updates the readiness set and reports whether both participants are now in it.
func markReady(tx *store.Tx, m types.Match, caller types.Identity, isReady bool) (bool, error) {
	key := readyKey{MatchID: m.MatchID, Identity: caller}
	if !isReady {
		_, err := readyMarks.Delete(tx, key)
		return false, err
	}

	marked, err := readyMarks.Has(tx, key)
	if err != nil {
		return false, err
	}
	if !marked {
		mark := types.ReadyMark{MatchID: m.MatchID, Identity: caller, MarkedAt: tx.Now().UnixMicro()}
		if err := readyMarks.Insert(tx, key, mark); err != nil {
			return false, err
		}
	}

	for _, id := range []types.Identity{m.Player1, m.Player2} {
		ok, err := readyMarks.Has(tx, readyKey{MatchID: m.MatchID, Identity: id})
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// SubmitResult reports the battle outcome from the caller's perspective and completes the match.
func (a *Arena) SubmitResult(ctx context.Context, matchID uint64, caller types.Identity, callerWon bool) error {
	var result types.MatchResult
	err := a.update(ctx, "submit_result", caller, func(tx *store.Tx) error {
		m, err := participantMatch(tx, matchID, caller)
		if err != nil {
			return err
		}
		if err := requirePhase(m, types.MatchStateBattleReady); err != nil {
			return err
		}

		winner := m.Opponent(caller)
		if callerWon {
			winner = caller
		}
		result, err = a.complete(tx, m, winner, types.ResultReasonBattle)
		return err
	})
	if err != nil {
		return err
	}
	a.logCompleted(result)
	return nil
}

// Forfeit concedes the match to the opponent. It is accepted in any phase.
func (a *Arena) Forfeit(ctx context.Context, matchID uint64, caller types.Identity) error {
	var result types.MatchResult
	err := a.update(ctx, "forfeit", caller, func(tx *store.Tx) error {
		m, err := participantMatch(tx, matchID, caller)
		if err != nil {
			return err
		}
		result, err = a.complete(tx, m, m.Opponent(caller), types.ResultReasonForfeit)
		return err
	})
	if err != nil {
		return err
	}
	a.logCompleted(result)
	return nil
}

// complete applies the terminal side effects of a match in order: the match is marked completed with its winner,
// both players return to in_queue without a match (they are not re-enqueued), the board and ready marks are deleted,
// the history row is written, and finally the match row is deleted.
func (a *Arena) complete(
	tx *store.Tx,
	m types.Match,
	winner types.Identity,
	reason types.ResultReason,
) (types.MatchResult, error) {
	m.State = types.MatchStateCompleted
	m.Winner = &winner
	if err := matches.Update(tx, m.MatchID, m); err != nil {
		return types.MatchResult{}, err
	}

	for _, id := range []types.Identity{m.Player1, m.Player2} {
		if err := putPlayer(tx, types.Player{Identity: id, State: types.PlayerStateInQueue}); err != nil {
			return types.MatchResult{}, err
		}
	}

	units, err := boardUnits.Filter(tx, func(u types.BoardUnit) bool { return u.MatchID == m.MatchID })
	if err != nil {
		return types.MatchResult{}, err
	}
	for _, u := range units {
		if err := deleteUnit(tx, u.ID); err != nil {
			return types.MatchResult{}, err
		}
	}
	if err := clearReadyMarks(tx, m.MatchID); err != nil {
		return types.MatchResult{}, err
	}

	result := types.MatchResult{
		MatchID:     m.MatchID,
		Player1:     m.Player1,
		Player2:     m.Player2,
		Winner:      winner,
		Reason:      reason,
		BattleSeed:  m.BattleSeed,
		CreatedAt:   m.CreatedAt,
		CompletedAt: tx.Now().UnixMicro(),
	}
	if a.opts.History == HistoryRetain {
		if err := history.Insert(tx, m.MatchID, result); err != nil {
			return types.MatchResult{}, err
		}
	}

	if _, err := matches.Delete(tx, m.MatchID); err != nil {
		return types.MatchResult{}, err
	}
	return result, nil
}

func clearReadyMarks(tx *store.Tx, matchID uint64) error {
	marks, err := readyMarks.Filter(tx, func(r types.ReadyMark) bool { return r.MatchID == matchID })
	if err != nil {
		return err
	}
	for _, r := range marks {
		if _, err := readyMarks.Delete(tx, readyKey{MatchID: r.MatchID, Identity: r.Identity}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Arena) logCompleted(r types.MatchResult) {
	statsd.Count("matches.completed", "reason:"+string(r.Reason))
	a.log.Info().
		Uint64("match_id", r.MatchID).
		Str("winner", string(r.Winner)).
		Str("reason", string(r.Reason)).
		Msg("match completed")
}
