// Package database provides connection pool management for the tick store.
//
// Ticks appended to the in-memory history are optionally persisted to a
// PostgreSQL or TimescaleDB table named quote_ticks, one row per tick keyed by
// (run_id, seq) and indexed by (run_id, symbol, ts).
package database
