package arena

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
)

// Player returns the caller's player row.
func (a *Arena) Player(ctx context.Context, caller types.Identity) (types.Player, error) {
	var p types.Player
	err := a.view(ctx, "get_player", caller, func(tx *store.Tx) error {
		var ok bool
		var err error
		p, ok, err = players.Get(tx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrPlayerNotFound, "%s", caller)
		}
		return nil
	})
	return p, err
}

// Match returns a live match the caller participates in.
func (a *Arena) Match(ctx context.Context, matchID uint64, caller types.Identity) (types.Match, error) {
	var m types.Match
	err := a.view(ctx, "get_match", caller, func(tx *store.Tx) error {
		var err error
		m, err = participantMatch(tx, matchID, caller)
		return err
	})
	return m, err
}

// Board returns the caller's own units in a match with their items, ordered by unit id. The opponent's board is not
// readable.
func (a *Arena) Board(ctx context.Context, matchID uint64, caller types.Identity) ([]types.UnitLoadout, error) {
	var loadout []types.UnitLoadout
	err := a.view(ctx, "get_board", caller, func(tx *store.Tx) error {
		if _, err := participantMatch(tx, matchID, caller); err != nil {
			return err
		}
		units, err := boardUnits.Filter(tx, func(u types.BoardUnit) bool {
			return u.MatchID == matchID && u.Owner == caller
		})
		if err != nil {
			return err
		}

		byUnit := make(map[uint64][]types.UnitItem, len(units))
		for _, u := range units {
			byUnit[u.ID] = []types.UnitItem{}
		}
		items, err := unitItems.Filter(tx, func(i types.UnitItem) bool {
			_, ok := byUnit[i.BoardUnitID]
			return ok
		})
		if err != nil {
			return err
		}
		for _, i := range items {
			byUnit[i.BoardUnitID] = append(byUnit[i.BoardUnitID], i)
		}

		loadout = make([]types.UnitLoadout, 0, len(units))
		for _, u := range units {
			loadout = append(loadout, types.UnitLoadout{Unit: u, Items: byUnit[u.ID]})
		}
		return nil
	})
	return loadout, err
}

// Result returns the history row of a completed match the caller played in.
func (a *Arena) Result(ctx context.Context, matchID uint64, caller types.Identity) (types.MatchResult, error) {
	var r types.MatchResult
	err := a.view(ctx, "get_result", caller, func(tx *store.Tx) error {
		var ok bool
		var err error
		r, ok, err = history.Get(tx, matchID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrMatchNotFound, "no result for match %d", matchID)
		}
		if !r.IsParticipant(caller) {
			return eris.Wrapf(ErrNotParticipant, "match %d", matchID)
		}
		return nil
	})
	return r, err
}

// QueueLength returns the number of players waiting to be paired.
func (a *Arena) QueueLength(ctx context.Context) (int, error) {
	var n int
	err := a.view(ctx, "queue_length", "", func(tx *store.Tx) error {
		var err error
		n, err = queue.Count(tx)
		return err
	})
	return n, err
}
