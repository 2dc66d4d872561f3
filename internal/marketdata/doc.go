// Package marketdata turns market data snapshots into top-of-book history
// and change events.
//
// The Pipeline:
//   - Extracts (type, price, size) entries from the NoMDEntries group
//   - Maintains per-symbol best bid/ask and an append-only tick history
//   - Emits a price event only when the visible bid or ask changes
//   - Converts rejects and session termination into error events
//
// The Monitor independently reports symbols whose last update is older than
// the staleness threshold.
package marketdata
