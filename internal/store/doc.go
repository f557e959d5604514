// Package store is the boundary between txiso and the relational engine under
// test.
//
// The experiment code only ever talks to the Store and Tx interfaces. Two
// engines implement them:
//
//   - SQLStore: database/sql over Postgres (pgx or lib/pq) or SQLite
//     (mattn/go-sqlite3). Every Begin takes a dedicated *sql.Conn so that
//     concurrent transactions never share a connection.
//   - MemoryStore: an in-process engine with read-committed visibility and
//     exclusive per-row locks, used for deterministic tests.
//
// # Schema
//
//	key_int_value(key TEXT PRIMARY KEY, value INTEGER)
//	balance(workspace_id INTEGER, name TEXT, money DECIMAL)
//
// The only counter key in use is next_workspace_id. balance carries no
// uniqueness constraint; reads address rows by (workspace_id, name).
//
// # Lock modes
//
// LockNone issues a plain read under the transaction's isolation level.
// LockForUpdate additionally takes an exclusive lock on the matched row until
// the transaction ends, so competing lock-seeking readers block.
//
// Migrate provisions the schema and seeds the counter. It is called by
// "txiso init", never by an experiment.
package store
