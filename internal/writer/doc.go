// Package writer implements the batch tick writer.
//
// Every tick appended to a symbol's history is queued, batched by size or
// interval, and inserted into quote_ticks. Each row carries a per-run
// sequence number, so ticks with identical timestamps are all stored. Sizes
// the server did not send are written as NULL.
package writer
