package store

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/codec"
)

// Table is a typed handle over one named keyspace.
type Table[K any, V any] struct {
	name   string
	encode func(K) string
}

// NewTable returns a table handle. encode must be injective and must sort encoded keys in the desired scan order.
func NewTable[K any, V any](name string, encode func(K) string) Table[K, V] {
	return Table[K, V]{name: name, encode: encode}
}

// Name returns the table name.
func (t Table[K, V]) Name() string {
	return t.name
}

// Get returns the row stored under k.
func (t Table[K, V]) Get(tx *Tx, k K) (V, bool, error) {
	var zero V
	bz, ok, err := tx.get(t.name, t.encode(k))
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := codec.Decode[V](bz)
	if err != nil {
		return zero, false, eris.Wrapf(err, "failed to decode %s row", t.name)
	}
	return v, true, nil
}

// Has reports whether a row is stored under k.
func (t Table[K, V]) Has(tx *Tx, k K) (bool, error) {
	_, ok, err := tx.get(t.name, t.encode(k))
	return ok, err
}

// Insert adds a new row. It fails with ErrRowExists if k is taken.
func (t Table[K, V]) Insert(tx *Tx, k K, v V) error {
	key := t.encode(k)
	_, ok, err := tx.get(t.name, key)
	if err != nil {
		return err
	}
	if ok {
		return eris.Wrapf(ErrRowExists, "%s/%s", t.name, key)
	}
	bz, err := codec.Encode(v)
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s row", t.name)
	}
	return tx.put(t.name, key, OpInsert, nil, bz)
}

// Update replaces an existing row. It fails with ErrRowNotFound if k is not present.
func (t Table[K, V]) Update(tx *Tx, k K, v V) error {
	key := t.encode(k)
	old, ok, err := tx.get(t.name, key)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrRowNotFound, "%s/%s", t.name, key)
	}
	bz, err := codec.Encode(v)
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s row", t.name)
	}
	return tx.put(t.name, key, OpUpdate, old, bz)
}

// Delete removes the row stored under k and reports whether it existed.
func (t Table[K, V]) Delete(tx *Tx, k K) (bool, error) {
	key := t.encode(k)
	old, ok, err := tx.get(t.name, key)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.put(t.name, key, OpDelete, old, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Scan returns every row ordered by encoded key.
func (t Table[K, V]) Scan(tx *Tx) ([]V, error) {
	return t.Filter(tx, nil)
}

// Filter returns the rows matching keep ordered by encoded key. A nil keep matches every row.
func (t Table[K, V]) Filter(tx *Tx, keep func(V) bool) ([]V, error) {
	rows, err := tx.scan(t.name)
	if err != nil {
		return nil, err
	}
	values := make([]V, 0, len(rows))
	for _, row := range rows {
		v, err := codec.Decode[V](row.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to decode %s row %s", t.name, row.Key)
		}
		if keep == nil || keep(v) {
			values = append(values, v)
		}
	}
	return values, nil
}

// Count returns the number of rows.
func (t Table[K, V]) Count(tx *Tx) (int, error) {
	rows, err := tx.scan(t.name)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Uint64Key encodes a numeric key so that lexical order matches numeric order.
func Uint64Key(k uint64) string {
	return fmt.Sprintf("%020d", k)
}

// StringKey encodes a string-typed key as is.
func StringKey[K ~string](k K) string {
	return string(k)
}
