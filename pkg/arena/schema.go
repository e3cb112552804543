package arena

import (
	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
)

// Table names as they appear in the change feed.
const (
	TablePlayer      = "player"
	TableQueue       = "matchmaking_queue"
	TableMatch       = "match"
	TableBoardUnit   = "board_unit"
	TableUnitItem    = "unit_item"
	TableReadyMark   = "ready_mark"
	TableMatchResult = "match_result"
)

// Sequence names.
const (
	seqQueue     = "matchmaking_queue"
	seqBoardUnit = "board_unit"
	seqUnitItem  = "unit_item"
)

type readyKey struct {
	MatchID  uint64
	Identity types.Identity
}

func encodeReadyKey(k readyKey) string {
	return store.Uint64Key(k.MatchID) + "/" + string(k.Identity)
}

var (
	players    = store.NewTable[types.Identity, types.Player](TablePlayer, store.StringKey[types.Identity])
	queue      = store.NewTable[types.Identity, types.QueueEntry](TableQueue, store.StringKey[types.Identity])
	matches    = store.NewTable[uint64, types.Match](TableMatch, store.Uint64Key)
	boardUnits = store.NewTable[uint64, types.BoardUnit](TableBoardUnit, store.Uint64Key)
	unitItems  = store.NewTable[uint64, types.UnitItem](TableUnitItem, store.Uint64Key)
	readyMarks = store.NewTable[readyKey, types.ReadyMark](TableReadyMark, encodeReadyKey)
	history    = store.NewTable[uint64, types.MatchResult](TableMatchResult, store.Uint64Key)
)
