package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/codec"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps all rows in process memory. Its state can be captured with Snapshot and restored with Restore.
type MemoryBackend struct {
	mu        sync.RWMutex
	tables    map[string]map[string][]byte
	sequences map[string]uint64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tables:    make(map[string]map[string][]byte),
		sequences: make(map[string]uint64),
	}
}

func (m *MemoryBackend) Get(_ context.Context, table, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.tables[table][key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (m *MemoryBackend) Scan(_ context.Context, table string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]Row, 0, len(m.tables[table]))
	for key, value := range m.tables[table] {
		rows = append(rows, Row{Key: key, Value: bytes.Clone(value)})
	}
	sortRows(rows)
	return rows, nil
}

func (m *MemoryBackend) Sequence(_ context.Context, name string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequences[name], nil
}

func (m *MemoryBackend) Apply(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range batch.Writes {
		if w.Deleted() {
			delete(m.tables[w.Table], w.Key)
			continue
		}
		rows, ok := m.tables[w.Table]
		if !ok {
			rows = make(map[string][]byte)
			m.tables[w.Table] = rows
		}
		rows[w.Key] = bytes.Clone(w.Value)
	}
	for name, value := range batch.Sequences {
		m.sequences[name] = value
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// memorySnapshot is the serialized form of a MemoryBackend.
type memorySnapshot struct {
	Tables    map[string]map[string][]byte `json:"tables"`
	Sequences map[string]uint64            `json:"sequences"`
}

// Snapshot serializes the full backend state.
func (m *MemoryBackend) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bz, err := codec.Encode(memorySnapshot{Tables: m.tables, Sequences: m.sequences})
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode memory snapshot")
	}
	return bz, nil
}

// Restore replaces the backend state with a snapshot produced by Snapshot.
func (m *MemoryBackend) Restore(data []byte) error {
	snap, err := codec.Decode[memorySnapshot](data)
	if err != nil {
		return eris.Wrap(err, "failed to decode memory snapshot")
	}
	if snap.Tables == nil {
		snap.Tables = make(map[string]map[string][]byte)
	}
	if snap.Sequences == nil {
		snap.Sequences = make(map[string]uint64)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = snap.Tables
	m.sequences = snap.Sequences
	return nil
}
