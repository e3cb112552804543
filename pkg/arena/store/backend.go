package store

import (
	"context"
	"sort"
)

// Backend is the persistence layer underneath Store. Implementations only need to make Apply atomic; Store
// serializes writers.
type Backend interface {
	// Get returns the encoded row stored under key, or false if no such row exists.
	Get(ctx context.Context, table, key string) ([]byte, bool, error)

	// Scan returns every row of table ordered by key.
	Scan(ctx context.Context, table string) ([]Row, error)

	// Sequence returns the last value handed out by the named counter, or 0 if it was never used.
	Sequence(ctx context.Context, name string) (uint64, error)

	// Apply writes the whole batch atomically.
	Apply(ctx context.Context, batch Batch) error

	Close() error
}

// Row is one stored row.
type Row struct {
	Key   string
	Value []byte
}

// Write is one row mutation of a Batch. A nil Value deletes the row.
type Write struct {
	Table string
	Key   string
	Value []byte
}

// Deleted reports whether the write removes the row.
func (w Write) Deleted() bool {
	return w.Value == nil
}

// Batch is the set of committed changes of one transaction.
type Batch struct {
	Writes    []Write
	Sequences map[string]uint64
}

// Empty reports whether the batch has nothing to apply.
func (b Batch) Empty() bool {
	return len(b.Writes) == 0 && len(b.Sequences) == 0
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Key < rows[j].Key
	})
}
