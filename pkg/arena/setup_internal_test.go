package arena

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/arena/pkg/arena/store"
	"github.com/argus-labs/arena/pkg/arena/types"
)

const (
	alice types.Identity = "alice"
	bob   types.Identity = "bob"
	carol types.Identity = "carol"
	dave  types.Identity = "dave"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testArena struct {
	*Arena
	store *store.Store
	clock *testClock
}

func newTestArena(t *testing.T, opts Options) *testArena {
	t.Helper()
	clock := &testClock{now: time.UnixMicro(1_700_000_000_000_000)}
	s := store.New(store.NewMemoryBackend(), store.WithClock(clock.Now))
	a, err := New(s, opts)
	require.NoError(t, err)
	return &testArena{Arena: a, store: s, clock: clock}
}

// pair joins two players and returns the match formed by the second join.
func (ta *testArena) pair(t *testing.T, p1, p2 types.Identity) types.Match {
	t.Helper()
	ctx := context.Background()
	res, err := ta.Join(ctx, p1)
	require.NoError(t, err)
	require.Nil(t, res.Match)
	res, err = ta.Join(ctx, p2)
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	return *res.Match
}

func (ta *testArena) player(t *testing.T, id types.Identity) types.Player {
	t.Helper()
	p, err := ta.Player(context.Background(), id)
	require.NoError(t, err)
	return p
}

// rows reads one table directly.
func rows[K any, V any](t *testing.T, ta *testArena, table store.Table[K, V]) []V {
	t.Helper()
	var out []V
	err := ta.store.View(context.Background(), func(tx *store.Tx) error {
		var err error
		out, err = table.Scan(tx)
		return err
	})
	require.NoError(t, err)
	return out
}

// checkInvariants verifies the cross-table consistency every committed state must have.
func checkInvariants(t *testing.T, ta *testArena) {
	t.Helper()

	allPlayers := rows(t, ta, players)
	allQueue := rows(t, ta, queue)
	allMatches := rows(t, ta, matches)
	allUnits := rows(t, ta, boardUnits)
	allItems := rows(t, ta, unitItems)
	allMarks := rows(t, ta, readyMarks)

	playerByID := make(map[types.Identity]types.Player, len(allPlayers))
	for _, p := range allPlayers {
		playerByID[p.Identity] = p
	}
	matchByID := make(map[uint64]types.Match, len(allMatches))
	for _, m := range allMatches {
		matchByID[m.MatchID] = m
	}

	for _, p := range allPlayers {
		if !p.InMatch() {
			assert.Nil(t, p.CurrentMatchID, "player %s is in_queue with a match", p.Identity)
			continue
		}
		require.NotNil(t, p.CurrentMatchID, "player %s is in_match without a match", p.Identity)
		m, ok := matchByID[*p.CurrentMatchID]
		require.True(t, ok, "player %s references missing match %d", p.Identity, *p.CurrentMatchID)
		assert.True(t, m.IsParticipant(p.Identity), "player %s not in its match", p.Identity)
	}

	for _, e := range allQueue {
		p, ok := playerByID[e.Identity]
		require.True(t, ok, "queue entry %s without player", e.Identity)
		assert.False(t, p.InMatch(), "queued player %s is in a match", e.Identity)
	}

	inMatch := make(map[types.Identity]uint64)
	for _, m := range allMatches {
		assert.NotEqual(t, m.Player1, m.Player2)
		assert.NotEqual(t, types.MatchStateCompleted, m.State, "completed match %d persisted", m.MatchID)
		assert.Nil(t, m.Winner, "live match %d has a winner", m.MatchID)
		assert.Equal(t, types.BattleSeed(m.MatchID), m.BattleSeed)
		for _, id := range []types.Identity{m.Player1, m.Player2} {
			other, dup := inMatch[id]
			assert.False(t, dup, "%s is in matches %d and %d", id, other, m.MatchID)
			inMatch[id] = m.MatchID

			p := playerByID[id]
			require.True(t, p.InMatch(), "participant %s of match %d is not in_match", id, m.MatchID)
			assert.Equal(t, m.MatchID, *p.CurrentMatchID)
		}
	}

	unitByID := make(map[uint64]types.BoardUnit, len(allUnits))
	for _, u := range allUnits {
		unitByID[u.ID] = u
		m, ok := matchByID[u.MatchID]
		require.True(t, ok, "unit %d references missing match %d", u.ID, u.MatchID)
		assert.True(t, m.IsParticipant(u.Owner), "unit %d owned by non participant", u.ID)
	}
	for _, i := range allItems {
		_, ok := unitByID[i.BoardUnitID]
		assert.True(t, ok, "orphaned item %d", i.ID)
	}
	for _, r := range allMarks {
		m, ok := matchByID[r.MatchID]
		require.True(t, ok, "ready mark for missing match %d", r.MatchID)
		assert.Equal(t, types.MatchStatePreparation, m.State)
		assert.True(t, m.IsParticipant(r.Identity))
	}
}
