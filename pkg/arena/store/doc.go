/*
Package store is the transactional table store the arena handlers run against. State changes made inside a
transaction are buffered and either committed to the Backend as one atomic batch, or discarded. In either case the
Backend is never left in an intermediate state.

# Transactions

Store.Update takes a function that returns an error. The function runs with a *Tx; every write made through the Tx is
kept as a pending change and reads through the same Tx report the pending values. Reading the Backend directly during
this time still returns the committed values.

If the function returns an error, all pending changes are discarded. Otherwise the pending changes are packaged into a
single Batch and handed to Backend.Apply. For the redis Backend this is one MULTI/EXEC pipeline, for the postgres
Backend one SQL transaction.

Update calls are serialized behind a single writer lock. Store.View runs read-only functions under a read lock and
may run concurrently with other View calls.

Every Update transaction is stamped with a timestamp at microsecond resolution. Within one Store the timestamps are
strictly increasing, so callers can use them as unique ids.

# Tables

A Table is a typed handle over one named keyspace. Keys are encoded to strings that sort in key order, rows are
encoded as JSON. Table.Scan and Table.Filter return rows ordered by encoded key.

# Change feed

Each committed transaction produces an ordered list of Change (insert, update or delete of one row, with old and new
values). Subscribers registered with Store.Subscribe receive every Commit in commit order. Discarded transactions
produce nothing.

# Backend model

	table:    a name such as "player" or "board_unit"
	key:      the encoded row key, unique within the table
	value:    JSON serialized row
	sequence: a named uint64 counter, the last id handed out
*/
package store
