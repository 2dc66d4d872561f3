package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// QuoteTicksDDL creates the tick table. Prices are NUMERIC so decimal
// strings round-trip without float error. seq numbers rows within a run, so
// ticks sharing a microsecond timestamp are all kept.
const QuoteTicksDDL = `
CREATE TABLE IF NOT EXISTS quote_ticks (
	run_id    UUID        NOT NULL,
	seq       BIGINT      NOT NULL,
	symbol    TEXT        NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	bid       NUMERIC     NOT NULL,
	ask       NUMERIC     NOT NULL,
	bid_size  NUMERIC,
	ask_size  NUMERIC,
	mid       NUMERIC     NOT NULL,
	spread    NUMERIC     NOT NULL,
	PRIMARY KEY (run_id, seq)
)`

// QuoteTicksIndexDDL indexes ticks for per-symbol time-range reads.
const QuoteTicksIndexDDL = `
CREATE INDEX IF NOT EXISTS quote_ticks_symbol_ts_idx
	ON quote_ticks (run_id, symbol, ts)`

// EnsureSchema creates the tables the tick writer needs.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, QuoteTicksDDL); err != nil {
		return fmt.Errorf("create quote_ticks: %w", err)
	}
	if _, err := pool.Exec(ctx, QuoteTicksIndexDDL); err != nil {
		return fmt.Errorf("create quote_ticks index: %w", err)
	}
	return nil
}
