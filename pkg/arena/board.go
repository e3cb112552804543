package arena

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
)

// UpdateBoard places a new unit on the caller's board. Every call appends a unit with a fresh id; existing units are
// never replaced.
func (a *Arena) UpdateBoard(
	ctx context.Context,
	matchID uint64,
	caller types.Identity,
	placement types.UnitPlacement,
) (types.BoardUnit, error) {
	var unit types.BoardUnit
	err := a.update(ctx, "update_board", caller, func(tx *store.Tx) error {
		m, err := participantMatch(tx, matchID, caller)
		if err != nil {
			return err
		}
		if err := requirePhase(m, types.MatchStatePreparation); err != nil {
			return err
		}

		id, err := tx.NextID(seqBoardUnit)
		if err != nil {
			return err
		}
		unit = types.BoardUnit{
			ID:        id,
			MatchID:   matchID,
			Owner:     caller,
			UnitName:  placement.UnitName,
			Tier:      placement.Tier,
			PositionX: placement.PositionX,
			PositionY: placement.PositionY,
			OnBench:   placement.OnBench,
		}
		return boardUnits.Insert(tx, id, unit)
	})
	if err != nil {
		return types.BoardUnit{}, err
	}
	return unit, nil
}

// ClearBoard removes every unit the caller placed in the match, with their items. It is accepted in any phase.
func (a *Arena) ClearBoard(ctx context.Context, matchID uint64, caller types.Identity) error {
	return a.update(ctx, "clear_board", caller, func(tx *store.Tx) error {
		if _, err := participantMatch(tx, matchID, caller); err != nil {
			return err
		}
		units, err := boardUnits.Filter(tx, func(u types.BoardUnit) bool {
			return u.MatchID == matchID && u.Owner == caller
		})
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := deleteUnit(tx, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddItem equips an item on one of the caller's units while its match is in preparation. Neither the number of items
// nor the uniqueness of equip slots is checked.
func (a *Arena) AddItem(
	ctx context.Context,
	unitID uint64,
	caller types.Identity,
	itemID string,
	equipIndex uint8,
) (types.UnitItem, error) {
	var item types.UnitItem
	err := a.update(ctx, "add_item", caller, func(tx *store.Tx) error {
		unit, ok, err := boardUnits.Get(tx, unitID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrUnitNotFound, "unit %d", unitID)
		}
		if unit.Owner != caller {
			return eris.Wrapf(ErrNotOwner, "unit %d", unitID)
		}

		m, ok, err := matches.Get(tx, unit.MatchID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrUnitNotFound, "unit %d has no live match", unitID)
		}
		if err := requirePhase(m, types.MatchStatePreparation); err != nil {
			return err
		}

		id, err := tx.NextID(seqUnitItem)
		if err != nil {
			return err
		}
		item = types.UnitItem{ID: id, BoardUnitID: unitID, ItemID: itemID, EquipIndex: equipIndex}
		return unitItems.Insert(tx, id, item)
	})
	if err != nil {
		return types.UnitItem{}, err
	}
	return item, nil
}

// deleteUnit removes a unit after its items.
func deleteUnit(tx *store.Tx, unitID uint64) error {
	items, err := unitItems.Filter(tx, func(i types.UnitItem) bool { return i.BoardUnitID == unitID })
	if err != nil {
		return err
	}
	for _, i := range items {
		if _, err := unitItems.Delete(tx, i.ID); err != nil {
			return err
		}
	}
	_, err = boardUnits.Delete(tx, unitID)
	return err
}
