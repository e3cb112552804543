// Package types provides the row types of the arena shard.
package types

// Identity is the stable, authenticated identifier of a caller. It is opaque to the arena and only
// compared for equality.
type Identity string

// PlayerState is the coarse status of a player.
type PlayerState string

const (
	PlayerStateInQueue PlayerState = "in_queue" // Not in a match. Does not imply a queue entry exists.
	PlayerStateInMatch PlayerState = "in_match" // Assigned to a live match
)

// MatchState is the phase of a match.
type MatchState string

const (
	MatchStatePreparation MatchState = "preparation"
	MatchStateBattleReady MatchState = "battle_ready"
	MatchStateCompleted   MatchState = "completed"
)

// ResultReason records how a match reached its terminal state.
type ResultReason string

const (
	ResultReasonBattle  ResultReason = "battle"
	ResultReasonForfeit ResultReason = "forfeit"
)

// battleSeedMultiplier derives the battle seed from the match id.
const battleSeedMultiplier uint64 = 12345

// BattleSeed returns the deterministic battle seed of a match. Overflow wraps.
func BattleSeed(matchID uint64) uint64 {
	return matchID * battleSeedMultiplier
}

// Player is the persistent record of an identity. Created on first join and never deleted.
type Player struct {
	Identity       Identity    `json:"identity"`
	State          PlayerState `json:"state"`
	CurrentMatchID *uint64     `json:"current_match_id,omitempty"`
}

// InMatch reports whether the player is assigned to a match.
func (p Player) InMatch() bool {
	return p.State == PlayerStateInMatch
}

// QueueEntry is a player waiting to be paired.
type QueueEntry struct {
	Identity Identity `json:"identity"`
	QueuedAt int64    `json:"queued_at"` // Unix microseconds
	Seq      uint64   `json:"seq"`       // Insertion order, used as a tiebreak for equal QueuedAt
}

// Before reports whether e was enqueued before other.
func (e QueueEntry) Before(other QueueEntry) bool {
	if e.QueuedAt != other.QueuedAt {
		return e.QueuedAt < other.QueuedAt
	}
	return e.Seq < other.Seq
}

// Match is a live two-player match.
type Match struct {
	MatchID    uint64     `json:"match_id"`
	Player1    Identity   `json:"player1"`
	Player2    Identity   `json:"player2"`
	State      MatchState `json:"state"`
	BattleSeed uint64     `json:"battle_seed"`
	CreatedAt  int64      `json:"created_at"` // Unix microseconds
	Winner     *Identity  `json:"winner,omitempty"`
}

// IsParticipant reports whether id is one of the two players of the match.
func (m Match) IsParticipant(id Identity) bool {
	return m.Player1 == id || m.Player2 == id
}

// Opponent returns the other participant. The caller must be a participant.
func (m Match) Opponent(id Identity) Identity {
	if m.Player1 == id {
		return m.Player2
	}
	return m.Player1
}

// BoardUnit is one unit placed by a player during preparation.
type BoardUnit struct {
	ID        uint64   `json:"id"`
	MatchID   uint64   `json:"match_id"`
	Owner     Identity `json:"owner"`
	UnitName  string   `json:"unit_name"`
	Tier      uint8    `json:"tier"`
	PositionX int32    `json:"position_x"`
	PositionY int32    `json:"position_y"`
	OnBench   bool     `json:"on_bench"`
}

// UnitPlacement is the caller-supplied part of a BoardUnit.
type UnitPlacement struct {
	UnitName  string `json:"unit_name"`
	Tier      uint8  `json:"tier"`
	PositionX int32  `json:"position_x"`
	PositionY int32  `json:"position_y"`
	OnBench   bool   `json:"on_bench"`
}

// UnitItem is an item equipped on a BoardUnit.
type UnitItem struct {
	ID          uint64 `json:"id"`
	BoardUnitID uint64 `json:"board_unit_id"`
	ItemID      string `json:"item_id"`
	EquipIndex  uint8  `json:"equip_index"`
}

// UnitLoadout is a unit together with its equipped items.
type UnitLoadout struct {
	Unit  BoardUnit  `json:"unit"`
	Items []UnitItem `json:"items"`
}

// ReadyMark records that a participant declared readiness for a match.
type ReadyMark struct {
	MatchID  uint64   `json:"match_id"`
	Identity Identity `json:"identity"`
	MarkedAt int64    `json:"marked_at"` // Unix microseconds
}

// MatchResult is the history record of a completed match.
type MatchResult struct {
	MatchID     uint64       `json:"match_id"`
	Player1     Identity     `json:"player1"`
	Player2     Identity     `json:"player2"`
	Winner      Identity     `json:"winner"`
	Reason      ResultReason `json:"reason"`
	BattleSeed  uint64       `json:"battle_seed"`
	CreatedAt   int64        `json:"created_at"`   // Unix microseconds
	CompletedAt int64        `json:"completed_at"` // Unix microseconds
}

// IsParticipant reports whether id played in the match.
func (r MatchResult) IsParticipant(id Identity) bool {
	return r.Player1 == id || r.Player2 == id
}
