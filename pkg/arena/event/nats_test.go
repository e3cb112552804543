package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/arena/pkg/arena/event"
	"github.com/argus-labs/arena/pkg/arena/store"
)

type row struct {
	Name string `json:"name"`
}

var rowsTable = store.NewTable[string, row]("row", store.StringKey[string])

func TestNATSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     event.NATSConfig
		wantErr bool
	}{
		{name: "valid", cfg: event.NATSConfig{URL: "nats://localhost:4222", SubjectPrefix: "arena"}},
		{name: "missing url", cfg: event.NATSConfig{SubjectPrefix: "arena"}, wantErr: true},
		{name: "empty prefix", cfg: event.NATSConfig{URL: "nats://localhost:4222"}, wantErr: true},
		{name: "wildcard prefix", cfg: event.NATSConfig{URL: "nats://localhost:4222", SubjectPrefix: "a.>"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadNATSConfig_FromEnv(t *testing.T) {
	t.Setenv("ARENA_NATS_URL", "nats://example:4222")
	t.Setenv("ARENA_NATS_SUBJECT_PREFIX", "shard1")

	cfg, err := event.LoadNATSConfig()
	require.NoError(t, err)
	assert.Equal(t, "nats://example:4222", cfg.URL)
	assert.Equal(t, "shard1", cfg.SubjectPrefix)
	assert.Equal(t, "arena", cfg.Name)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := event.NewClient(event.WithNATSConfig(event.NATSConfig{SubjectPrefix: "arena"}))
	require.Error(t, err)
}

func TestPublisher_PublishesEachChange(t *testing.T) {
	c := newTestClient(t)
	pub, err := event.NewPublisher(c.Conn, "arena", zerolog.Nop())
	require.NoError(t, err)

	sub, err := c.SubscribeSync("arena.>")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, c.Flush())

	s := store.New(store.NewMemoryBackend())
	s.Subscribe(pub.Subscriber())

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx *store.Tx) error {
		return rowsTable.Insert(tx, "a", row{Name: "first"})
	}))
	require.NoError(t, s.Update(ctx, func(tx *store.Tx) error {
		if err := rowsTable.Update(tx, "a", row{Name: "second"}); err != nil {
			return err
		}
		_, err := rowsTable.Delete(tx, "a")
		return err
	}))

	want := []struct {
		subject string
		op      store.Op
	}{
		{"arena.row.insert", store.OpInsert},
		{"arena.row.update", store.OpUpdate},
		{"arena.row.delete", store.OpDelete},
	}
	for _, w := range want {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, w.subject, msg.Subject)

		var e event.Event
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		assert.Equal(t, "row", e.Table)
		assert.Equal(t, w.op, e.Op)
		assert.Equal(t, "a", e.Key)
		assert.Positive(t, e.Timestamp)
	}

	_, err = sub.NextMsg(100 * time.Millisecond)
	require.ErrorIs(t, err, nats.ErrTimeout)
}

func TestPublisher_RejectedTransactionPublishesNothing(t *testing.T) {
	c := newTestClient(t)
	pub, err := event.NewPublisher(c.Conn, "arena", zerolog.Nop())
	require.NoError(t, err)

	sub, err := c.SubscribeSync("arena.>")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, c.Flush())

	s := store.New(store.NewMemoryBackend())
	s.Subscribe(pub.Subscriber())

	err = s.Update(context.Background(), func(tx *store.Tx) error {
		return rowsTable.Update(tx, "missing", row{})
	})
	require.ErrorIs(t, err, store.ErrRowNotFound)

	_, err = sub.NextMsg(100 * time.Millisecond)
	require.ErrorIs(t, err, nats.ErrTimeout)
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := event.NewPublisher(nil, "arena", zerolog.Nop())
	require.Error(t, err)

	c := newTestClient(t)
	_, err = event.NewPublisher(c.Conn, "", zerolog.Nop())
	require.Error(t, err)
}

func TestFromCommit(t *testing.T) {
	ts := time.UnixMicro(1_700_000_000_000_123)
	batch := event.FromCommit(store.Commit{
		Timestamp: ts,
		Changes: []store.Change{
			{Table: "player", Op: store.OpInsert, Key: "alice", New: json.RawMessage(`{"identity":"alice"}`)},
			{Table: "matchmaking_queue", Op: store.OpDelete, Key: "alice", Old: json.RawMessage(`{}`)},
		},
	})

	assert.Equal(t, ts.UnixMicro(), batch.Timestamp)
	require.Len(t, batch.Events, 2)
	assert.Equal(t, "player", batch.Events[0].Table)
	assert.Equal(t, ts.UnixMicro(), batch.Events[1].Timestamp)
	assert.Equal(t, store.OpDelete, batch.Events[1].Op)
	assert.Nil(t, batch.Events[1].New)
}
