// Package event fans committed arena changes out to websocket clients and NATS subscribers.
package event

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
)

// Event is one row change as sent to subscribers.
type Event struct {
	Timestamp int64           `json:"timestamp"` // Unix microseconds of the commit
	Table     string          `json:"table"`
	Op        store.Op        `json:"op"`
	Key       string          `json:"key"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
}

// Batch is every change of one commit, in the order they were made.
type Batch struct {
	Timestamp int64   `json:"timestamp"`
	Events    []Event `json:"events"`
}

// FromCommit converts a commit into its events.
func FromCommit(commit store.Commit) Batch {
	ts := commit.Timestamp.UnixMicro()
	events := make([]Event, 0, len(commit.Changes))
	for _, c := range commit.Changes {
		events = append(events, Event{
			Timestamp: ts,
			Table:     c.Table,
			Op:        c.Op,
			Key:       c.Key,
			Old:       c.Old,
			New:       c.New,
		})
	}
	return Batch{Timestamp: ts, Events: events}
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal event")
	}
	return data, nil
}
