package store

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

var (
	ErrReadOnly    = eris.New("transaction is read-only")
	ErrRowExists   = eris.New("row already exists")
	ErrRowNotFound = eris.New("row does not exist")
)

// Op is the kind of a row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one row mutation made by a committed transaction.
type Change struct {
	Table string          `json:"table"`
	Op    Op              `json:"op"`
	Key   string          `json:"key"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// Commit is the change set of one committed transaction.
type Commit struct {
	Timestamp time.Time `json:"timestamp"`
	Changes   []Change  `json:"changes"`
}

type rowID struct {
	table string
	key   string
}

// Tx is a single transaction. It is not safe for concurrent use and must not outlive the function passed to
// Store.Update or Store.View.
type Tx struct {
	ctx      context.Context
	backend  Backend
	now      time.Time
	writable bool

	// Pending row values in first-touch order. A nil value is a pending delete.
	rows  map[rowID][]byte
	order []rowID

	seqs    map[string]uint64
	changes []Change
}

func newTx(ctx context.Context, backend Backend, now time.Time, writable bool) *Tx {
	return &Tx{
		ctx:      ctx,
		backend:  backend,
		now:      now,
		writable: writable,
		rows:     make(map[rowID][]byte),
		order:    make([]rowID, 0),
		seqs:     make(map[string]uint64),
		changes:  make([]Change, 0),
	}
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Now returns the transaction timestamp.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// NextID reserves the next value of the named sequence. Values start at 1. Values reserved by a discarded
// transaction are handed out again.
func (tx *Tx) NextID(name string) (uint64, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	current, ok := tx.seqs[name]
	if !ok {
		var err error
		current, err = tx.backend.Sequence(tx.ctx, name)
		if err != nil {
			return 0, eris.Wrapf(err, "failed to load sequence %s", name)
		}
	}
	current++
	tx.seqs[name] = current
	return current, nil
}

func (tx *Tx) get(table, key string) ([]byte, bool, error) {
	if value, ok := tx.rows[rowID{table, key}]; ok {
		return value, value != nil, nil
	}
	value, ok, err := tx.backend.Get(tx.ctx, table, key)
	if err != nil {
		return nil, false, eris.Wrapf(err, "failed to get %s/%s", table, key)
	}
	return value, ok, nil
}

func (tx *Tx) scan(table string) ([]Row, error) {
	stored, err := tx.backend.Scan(tx.ctx, table)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to scan %s", table)
	}

	touched := false
	for id := range tx.rows {
		if id.table == table {
			touched = true
			break
		}
	}
	if !touched {
		return stored, nil
	}

	merged := make(map[string][]byte, len(stored))
	for _, row := range stored {
		merged[row.Key] = row.Value
	}
	for id, value := range tx.rows {
		if id.table != table {
			continue
		}
		if value == nil {
			delete(merged, id.key)
		} else {
			merged[id.key] = value
		}
	}

	rows := make([]Row, 0, len(merged))
	for key, value := range merged {
		rows = append(rows, Row{Key: key, Value: value})
	}
	sortRows(rows)
	return rows, nil
}

// put records a pending write and its change. A nil value deletes the row.
func (tx *Tx) put(table, key string, op Op, old, value []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	id := rowID{table, key}
	if _, ok := tx.rows[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.rows[id] = value
	tx.changes = append(tx.changes, Change{
		Table: table,
		Op:    op,
		Key:   key,
		Old:   old,
		New:   value,
	})
	return nil
}

func (tx *Tx) batch() Batch {
	writes := make([]Write, 0, len(tx.order))
	for _, id := range tx.order {
		writes = append(writes, Write{Table: id.table, Key: id.key, Value: tx.rows[id]})
	}
	var seqs map[string]uint64
	if len(tx.seqs) > 0 {
		seqs = make(map[string]uint64, len(tx.seqs))
		for name, value := range tx.seqs {
			seqs[name] = value
		}
	}
	return Batch{Writes: writes, Sequences: seqs}
}
