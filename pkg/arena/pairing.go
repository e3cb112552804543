package arena

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
	"github.com/argus-labs/arena/pkg/assert"
)

// tryPair pairs the two earliest queue entries into a new match, if there are at least two. At most one match is
// formed per call. The match id is the transaction timestamp in Unix microseconds.
func tryPair(tx *store.Tx) (*types.Match, error) {
	entries, err := queue.Scan(tx)
	if err != nil {
		return nil, err
	}
	if len(entries) < 2 {
		return nil, nil //nolint:nilnil // no match is not an error
	}

	slices.SortFunc(entries, func(a, b types.QueueEntry) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	p1, p2 := entries[0].Identity, entries[1].Identity
	assert.That(p1 != p2, "queue holds %s twice", p1)

	now := tx.Now()
	matchID := uint64(now.UnixMicro()) //nolint:gosec // timestamps are positive
	m := types.Match{
		MatchID:    matchID,
		Player1:    p1,
		Player2:    p2,
		State:      types.MatchStatePreparation,
		BattleSeed: types.BattleSeed(matchID),
		CreatedAt:  now.UnixMicro(),
	}
	if err := matches.Insert(tx, matchID, m); err != nil {
		return nil, eris.Wrapf(err, "failed to create match %d", matchID)
	}

	for _, id := range []types.Identity{p1, p2} {
		current := matchID
		if err := putPlayer(tx, types.Player{
			Identity:       id,
			State:          types.PlayerStateInMatch,
			CurrentMatchID: &current,
		}); err != nil {
			return nil, err
		}
		if _, err := queue.Delete(tx, id); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
