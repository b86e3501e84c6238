// Package store provides SQL-backed durable storage for the datastore
// write path. It runs on SQLite (mattn/go-sqlite3) or PostgreSQL (lib/pq)
// through a conn.Manager.
//
// # Tables
//
//   - positions: one row per committed write request
//   - events: append-only log, ordered by (position, weight)
//   - models: current model state as canonical JSON, soft-deleted included
//   - lock_positions: last position per fqid, fqfield and collectionfield key
//   - id_sequences: next free id per collection
//
// # Transactions
//
// Methods join the transaction carried by their context (see
// conn.TxFromContext) and open their own otherwise. The writer runs OCC
// checks, reads and InsertEvents in one transaction so they see one
// consistent state.
//
// All statements use $n placeholders, which both drivers accept. Table
// names chosen at runtime go through conn.FormatQuery.
package store
