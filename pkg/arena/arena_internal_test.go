package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
)

func TestJoin_FirstPlayerWaits(t *testing.T) {
	ta := newTestArena(t, Options{})
	res, err := ta.Join(context.Background(), alice)
	require.NoError(t, err)

	assert.Nil(t, res.Match)
	assert.Equal(t, types.Player{Identity: alice, State: types.PlayerStateInQueue}, res.Player)

	q := rows(t, ta, queue)
	require.Len(t, q, 1)
	assert.Equal(t, alice, q[0].Identity)
	assert.Equal(t, ta.clock.Now().UnixMicro(), q[0].QueuedAt)
	checkInvariants(t, ta)
}

func TestJoin_SecondPlayerFormsMatch(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()

	_, err := ta.Join(ctx, alice)
	require.NoError(t, err)

	pairedAt := time.UnixMicro(1_700_000_000_500_000)
	ta.clock.Set(pairedAt)
	res, err := ta.Join(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, res.Match)

	m := *res.Match
	assert.Equal(t, uint64(pairedAt.UnixMicro()), m.MatchID)
	assert.Equal(t, m.MatchID*12345, m.BattleSeed)
	assert.Equal(t, alice, m.Player1)
	assert.Equal(t, bob, m.Player2)
	assert.Equal(t, types.MatchStatePreparation, m.State)
	assert.Equal(t, pairedAt.UnixMicro(), m.CreatedAt)
	assert.Nil(t, m.Winner)

	for _, id := range []types.Identity{alice, bob} {
		p := ta.player(t, id)
		assert.Equal(t, types.PlayerStateInMatch, p.State)
		require.NotNil(t, p.CurrentMatchID)
		assert.Equal(t, m.MatchID, *p.CurrentMatchID)
	}
	assert.Equal(t, ta.player(t, bob), res.Player)
	assert.Empty(t, rows(t, ta, queue))
	checkInvariants(t, ta)
}

func TestJoin_AlreadyInMatch(t *testing.T) {
	ta := newTestArena(t, Options{})
	ta.pair(t, alice, bob)

	_, err := ta.Join(context.Background(), alice)
	require.ErrorIs(t, err, ErrAlreadyInMatch)
	assert.Empty(t, rows(t, ta, queue))
	checkInvariants(t, ta)
}

func TestJoin_TwiceKeepsQueuePosition(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()

	_, err := ta.Join(ctx, alice)
	require.NoError(t, err)
	first := rows(t, ta, queue)[0]

	ta.clock.Set(ta.clock.Now().Add(time.Second))
	res, err := ta.Join(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, res.Match)

	q := rows(t, ta, queue)
	require.Len(t, q, 1)
	assert.Equal(t, first, q[0])
}

func TestJoin_MatchIDsAreUniqueUnderFrozenClock(t *testing.T) {
	ta := newTestArena(t, Options{})
	m1 := ta.pair(t, alice, bob)
	m2 := ta.pair(t, carol, dave)

	assert.NotEqual(t, m1.MatchID, m2.MatchID)
	assert.Greater(t, m2.MatchID, m1.MatchID)
	assert.Len(t, rows(t, ta, matches), 2)
	checkInvariants(t, ta)
}

func TestJoin_AfterMatchCompletes(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	require.NoError(t, ta.Forfeit(ctx, m.MatchID, alice))

	// Completion does not re-enqueue.
	assert.Empty(t, rows(t, ta, queue))

	res, err := ta.Join(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	res, err = ta.Join(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	assert.NotEqual(t, m.MatchID, res.Match.MatchID)
	checkInvariants(t, ta)
}

func TestTryPair_FIFOByQueuedAt(t *testing.T) {
	ta := newTestArena(t, Options{})
	err := ta.store.Update(context.Background(), func(tx *store.Tx) error {
		for i, e := range []types.QueueEntry{
			{Identity: alice, QueuedAt: 100},
			{Identity: bob, QueuedAt: 200},
			{Identity: carol, QueuedAt: 150},
		} {
			e.Seq = uint64(i + 1)
			require.NoError(t, players.Insert(tx, e.Identity, types.Player{
				Identity: e.Identity,
				State:    types.PlayerStateInQueue,
			}))
			require.NoError(t, queue.Insert(tx, e.Identity, e))
		}

		m, err := tryPair(tx)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, alice, m.Player1)
		assert.Equal(t, carol, m.Player2)

		again, err := tryPair(tx)
		require.NoError(t, err)
		assert.Nil(t, again, "one entry left must not pair")
		return nil
	})
	require.NoError(t, err)

	q := rows(t, ta, queue)
	require.Len(t, q, 1)
	assert.Equal(t, bob, q[0].Identity)
	checkInvariants(t, ta)
}

func TestTryPair_EqualTimestampsUseInsertionOrder(t *testing.T) {
	ta := newTestArena(t, Options{})
	err := ta.store.Update(context.Background(), func(tx *store.Tx) error {
		// Keys sort as alice < bob < carol, insertion order is carol, alice, bob.
		for i, id := range []types.Identity{carol, alice, bob} {
			require.NoError(t, players.Insert(tx, id, types.Player{Identity: id, State: types.PlayerStateInQueue}))
			require.NoError(t, queue.Insert(tx, id, types.QueueEntry{Identity: id, QueuedAt: 100, Seq: uint64(i + 1)}))
		}
		m, err := tryPair(tx)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, carol, m.Player1)
		assert.Equal(t, alice, m.Player2)
		return nil
	})
	require.NoError(t, err)
}

func TestLeave(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()

	require.NoError(t, ta.Leave(ctx, alice), "leaving without ever joining succeeds")

	_, err := ta.Join(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, ta.Leave(ctx, alice))
	assert.Empty(t, rows(t, ta, queue))
	assert.Equal(t, types.PlayerStateInQueue, ta.player(t, alice).State)

	// Leaving does not touch a live match.
	m := ta.pair(t, carol, dave)
	require.NoError(t, ta.Leave(ctx, carol))
	got, err := ta.Match(ctx, m.MatchID, carol)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.True(t, ta.player(t, carol).InMatch())
	checkInvariants(t, ta)
}

// Scenario: X joins and waits, Y joins and is paired, X marks ready, Y reports a loss.
func TestScenario_EitherPolicy(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
	ctx := context.Background()
	const x, y types.Identity = "x", "y"

	res, err := ta.Join(ctx, x)
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	assert.Equal(t, types.PlayerStateInQueue, res.Player.State)

	res, err = ta.Join(ctx, y)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	m := *res.Match
	assert.Equal(t, m.MatchID*12345, m.BattleSeed)
	assert.True(t, ta.player(t, x).InMatch())
	assert.True(t, ta.player(t, y).InMatch())
	assert.Empty(t, rows(t, ta, queue))

	got, err := ta.MarkReady(ctx, m.MatchID, x, true)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStateBattleReady, got.State)

	require.NoError(t, ta.SubmitResult(ctx, m.MatchID, y, false))

	_, err = ta.Match(ctx, m.MatchID, x)
	require.ErrorIs(t, err, ErrMatchNotFound)
	for _, id := range []types.Identity{x, y} {
		assert.Equal(t, types.Player{Identity: id, State: types.PlayerStateInQueue}, ta.player(t, id))
	}

	result, err := ta.Result(ctx, m.MatchID, y)
	require.NoError(t, err)
	assert.Equal(t, x, result.Winner)
	assert.Equal(t, types.ResultReasonBattle, result.Reason)
	assert.Equal(t, m.BattleSeed, result.BattleSeed)
	checkInvariants(t, ta)
}

func TestScenario_NonParticipant(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)

	res, err := ta.Join(ctx, carol)
	require.NoError(t, err)
	assert.Nil(t, res.Match)

	var commits int
	ta.store.Subscribe(func(context.Context, store.Commit) { commits++ })

	_, err = ta.MarkReady(ctx, m.MatchID, carol, true)
	require.ErrorIs(t, err, ErrNotParticipant)
	_, err = ta.UpdateBoard(ctx, m.MatchID, carol, types.UnitPlacement{UnitName: "knight"})
	require.ErrorIs(t, err, ErrNotParticipant)
	require.ErrorIs(t, ta.ClearBoard(ctx, m.MatchID, carol), ErrNotParticipant)
	require.ErrorIs(t, ta.SubmitResult(ctx, m.MatchID, carol, true), ErrNotParticipant)
	require.ErrorIs(t, ta.Forfeit(ctx, m.MatchID, carol), ErrNotParticipant)
	_, err = ta.Match(ctx, m.MatchID, carol)
	require.ErrorIs(t, err, ErrNotParticipant)
	_, err = ta.Board(ctx, m.MatchID, carol)
	require.ErrorIs(t, err, ErrNotParticipant)

	assert.Zero(t, commits, "rejected operations must not commit")
	got, err := ta.Match(ctx, m.MatchID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)
	checkInvariants(t, ta)
}

func TestMarkReady_BothPolicy(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyBoth})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)

	got, err := ta.MarkReady(ctx, m.MatchID, alice, true)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)

	// Repeating a ready mark is idempotent.
	got, err = ta.MarkReady(ctx, m.MatchID, alice, true)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)
	assert.Len(t, rows(t, ta, readyMarks), 1)

	// Withdrawing removes the mark, so bob alone does not start the battle.
	_, err = ta.MarkReady(ctx, m.MatchID, alice, false)
	require.NoError(t, err)
	got, err = ta.MarkReady(ctx, m.MatchID, bob, true)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)

	got, err = ta.MarkReady(ctx, m.MatchID, alice, true)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStateBattleReady, got.State)
	assert.Empty(t, rows(t, ta, readyMarks))

	_, err = ta.MarkReady(ctx, m.MatchID, alice, true)
	require.ErrorIs(t, err, ErrInvalidPhase)
	checkInvariants(t, ta)
}

func TestMarkReady_EitherPolicyNotReadyIsNoop(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
	m := ta.pair(t, alice, bob)

	got, err := ta.MarkReady(context.Background(), m.MatchID, bob, false)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)
	assert.Empty(t, rows(t, ta, readyMarks))
}

func TestMarkReady_MatchNotFound(t *testing.T) {
	ta := newTestArena(t, Options{})
	_, err := ta.MarkReady(context.Background(), 42, alice, true)
	require.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSubmitResult(t *testing.T) {
	tests := []struct {
		name       string
		caller     types.Identity
		callerWon  bool
		wantWinner types.Identity
	}{
		{name: "player1 wins", caller: alice, callerWon: true, wantWinner: alice},
		{name: "player1 loses", caller: alice, callerWon: false, wantWinner: bob},
		{name: "player2 wins", caller: bob, callerWon: true, wantWinner: bob},
		{name: "player2 loses", caller: bob, callerWon: false, wantWinner: alice},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
			ctx := context.Background()
			m := ta.pair(t, alice, bob)
			_, err := ta.MarkReady(ctx, m.MatchID, alice, true)
			require.NoError(t, err)

			require.NoError(t, ta.SubmitResult(ctx, m.MatchID, tc.caller, tc.callerWon))
			r, err := ta.Result(ctx, m.MatchID, alice)
			require.NoError(t, err)
			assert.Equal(t, tc.wantWinner, r.Winner)

			// The match is gone, a second report finds nothing.
			require.ErrorIs(t, ta.SubmitResult(ctx, m.MatchID, tc.caller, tc.callerWon), ErrMatchNotFound)
			checkInvariants(t, ta)
		})
	}
}

func TestSubmitResult_RequiresBattleReady(t *testing.T) {
	ta := newTestArena(t, Options{})
	m := ta.pair(t, alice, bob)

	err := ta.SubmitResult(context.Background(), m.MatchID, alice, true)
	require.ErrorIs(t, err, ErrInvalidPhase)
	got, err := ta.Match(context.Background(), m.MatchID, alice)
	require.NoError(t, err)
	assert.Equal(t, types.MatchStatePreparation, got.State)
}

func TestForfeit_CleansUpOnlyThatMatch(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()
	m1 := ta.pair(t, alice, bob)
	m2 := ta.pair(t, carol, dave)

	for _, id := range []types.Identity{alice, bob} {
		u, err := ta.UpdateBoard(ctx, m1.MatchID, id, types.UnitPlacement{UnitName: "archer", Tier: 1})
		require.NoError(t, err)
		_, err = ta.AddItem(ctx, u.ID, id, "bow", 0)
		require.NoError(t, err)
	}
	_, err := ta.MarkReady(ctx, m1.MatchID, alice, true)
	require.NoError(t, err)
	other, err := ta.UpdateBoard(ctx, m2.MatchID, carol, types.UnitPlacement{UnitName: "mage"})
	require.NoError(t, err)
	otherItem, err := ta.AddItem(ctx, other.ID, carol, "staff", 1)
	require.NoError(t, err)

	require.NoError(t, ta.Forfeit(ctx, m1.MatchID, bob))

	r, err := ta.Result(ctx, m1.MatchID, bob)
	require.NoError(t, err)
	assert.Equal(t, alice, r.Winner)
	assert.Equal(t, types.ResultReasonForfeit, r.Reason)

	assert.Equal(t, []types.BoardUnit{other}, rows(t, ta, boardUnits))
	assert.Equal(t, []types.UnitItem{otherItem}, rows(t, ta, unitItems))
	assert.Empty(t, rows(t, ta, readyMarks))
	assert.Equal(t, []types.Match{m2}, rows(t, ta, matches))
	for _, id := range []types.Identity{alice, bob} {
		assert.Equal(t, types.Player{Identity: id, State: types.PlayerStateInQueue}, ta.player(t, id))
	}
	checkInvariants(t, ta)
}

func TestForfeit_AllowedInBattleReady(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	_, err := ta.MarkReady(ctx, m.MatchID, bob, true)
	require.NoError(t, err)

	require.NoError(t, ta.Forfeit(ctx, m.MatchID, alice))
	r, err := ta.Result(ctx, m.MatchID, alice)
	require.NoError(t, err)
	assert.Equal(t, bob, r.Winner)
}

func TestAddItem_RequiresPreparation(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	u, err := ta.UpdateBoard(ctx, m.MatchID, alice, types.UnitPlacement{UnitName: "knight"})
	require.NoError(t, err)
	_, err = ta.MarkReady(ctx, m.MatchID, alice, true)
	require.NoError(t, err)

	before := snapshot(t, ta)
	_, err = ta.AddItem(ctx, u.ID, alice, "sword", 0)
	require.ErrorIs(t, err, ErrInvalidPhase)
	assert.Equal(t, before, snapshot(t, ta))
	assert.Empty(t, rows(t, ta, unitItems))
	checkInvariants(t, ta)
}

func TestClearBoard_RemovesOnlyCallersUnits(t *testing.T) {
	ta := newTestArena(t, Options{ReadyPolicy: ReadyPolicyEither})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)

	mine, err := ta.UpdateBoard(ctx, m.MatchID, alice, types.UnitPlacement{UnitName: "knight"})
	require.NoError(t, err)
	_, err = ta.AddItem(ctx, mine.ID, alice, "sword", 0)
	require.NoError(t, err)
	theirs, err := ta.UpdateBoard(ctx, m.MatchID, bob, types.UnitPlacement{UnitName: "archer", Tier: 1})
	require.NoError(t, err)
	theirItem, err := ta.AddItem(ctx, theirs.ID, bob, "bow", 2)
	require.NoError(t, err)

	_, err = ta.MarkReady(ctx, m.MatchID, bob, true)
	require.NoError(t, err)
	live, err := ta.Match(ctx, m.MatchID, alice)
	require.NoError(t, err)
	require.Equal(t, types.MatchStateBattleReady, live.State)

	require.NoError(t, ta.ClearBoard(ctx, m.MatchID, alice))
	assert.Equal(t, []types.BoardUnit{theirs}, rows(t, ta, boardUnits))
	assert.Equal(t, []types.UnitItem{theirItem}, rows(t, ta, unitItems))

	board, err := ta.Board(ctx, m.MatchID, alice)
	require.NoError(t, err)
	assert.Empty(t, board)
	checkInvariants(t, ta)
}

func TestClearBoard_NonParticipant(t *testing.T) {
	ta := newTestArena(t, Options{})
	m := ta.pair(t, alice, bob)
	require.ErrorIs(t, ta.ClearBoard(context.Background(), m.MatchID, carol), ErrNotParticipant)
	require.ErrorIs(t, ta.ClearBoard(context.Background(), m.MatchID+1, alice), ErrMatchNotFound)
}

func TestTerminalCleanup_ChangeOrder(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	u, err := ta.UpdateBoard(ctx, m.MatchID, alice, types.UnitPlacement{UnitName: "knight"})
	require.NoError(t, err)
	_, err = ta.AddItem(ctx, u.ID, alice, "sword", 0)
	require.NoError(t, err)

	var commit store.Commit
	ta.store.Subscribe(func(_ context.Context, c store.Commit) { commit = c })
	require.NoError(t, ta.Forfeit(ctx, m.MatchID, alice))

	var order []string
	for _, c := range commit.Changes {
		order = append(order, c.Table+":"+string(c.Op))
	}
	assert.Equal(t, []string{
		"match:update",
		"player:update",
		"player:update",
		"unit_item:delete",
		"board_unit:delete",
		"match_result:insert",
		"match:delete",
	}, order)
	assert.Contains(t, string(commit.Changes[0].New), `"state":"completed"`)
	assert.Contains(t, string(commit.Changes[0].New), `"winner":"bob"`)
}

func TestHistoryDiscard(t *testing.T) {
	ta := newTestArena(t, Options{History: HistoryDiscard})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	require.NoError(t, ta.Forfeit(ctx, m.MatchID, alice))

	_, err := ta.Result(ctx, m.MatchID, alice)
	require.ErrorIs(t, err, ErrMatchNotFound)
	assert.Empty(t, rows(t, ta, history))
}

func TestResult_OnlyParticipants(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()
	m := ta.pair(t, alice, bob)
	require.NoError(t, ta.Forfeit(ctx, m.MatchID, alice))

	_, err := ta.Result(ctx, m.MatchID, carol)
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestPlayer_NotFound(t *testing.T) {
	ta := newTestArena(t, Options{})
	_, err := ta.Player(context.Background(), alice)
	require.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestQueueLength(t *testing.T) {
	ta := newTestArena(t, Options{})
	ctx := context.Background()

	n, err := ta.QueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ta.Join(ctx, alice)
	require.NoError(t, err)
	n, err = ta.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_InvalidReadyPolicyEnv(t *testing.T) {
	t.Setenv("ARENA_READY_POLICY", "sometimes")
	_, err := New(store.New(store.NewMemoryBackend()), Options{})
	require.Error(t, err)
}

func TestNew_ConfigFromEnv(t *testing.T) {
	t.Setenv("ARENA_READY_POLICY", "either")
	t.Setenv("ARENA_RETAIN_HISTORY", "false")

	a, err := New(store.New(store.NewMemoryBackend()), Options{})
	require.NoError(t, err)
	assert.Equal(t, ReadyPolicyEither, a.ReadyPolicy())
	assert.Equal(t, HistoryDiscard, a.opts.History)

	// Options override the environment.
	a, err = New(store.New(store.NewMemoryBackend()), Options{ReadyPolicy: ReadyPolicyBoth})
	require.NoError(t, err)
	assert.Equal(t, ReadyPolicyBoth, a.ReadyPolicy())
}

func TestNew_NilStore(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestIsDomainError(t *testing.T) {
	assert.True(t, IsDomainError(ErrInvalidPhase))
	assert.False(t, IsDomainError(store.ErrRowExists))
	assert.False(t, IsDomainError(nil))
}
