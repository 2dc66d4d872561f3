package writer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rickgao/quotefeed/internal/metrics"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/router"
)

// tickRow is one quote_ticks row. Decimals are passed as text so numeric
// columns keep full precision. A nil size is written as NULL.
type tickRow struct {
	RunID   uuid.UUID
	Seq     int64
	Symbol  string
	Ts      time.Time
	Bid     string
	Ask     string
	BidSize *string
	AskSize *string
	Mid     string
	Spread  string
}

// TickWriter consumes ticks from the pipeline and writes them to quote_ticks.
type TickWriter struct {
	cfg    WriterConfig
	runID  uuid.UUID
	logger *slog.Logger

	// Input from the tick pipeline
	input *router.Queue[model.Tick]

	// Database
	db *pgxpool.Pool

	// Per-run row sequence; keeps ticks with equal timestamps distinct
	seq atomic.Int64

	// Batching
	batch       []tickRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	consumeWg sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewTickWriter creates a new TickWriter. runID tags every row written by
// this process.
func NewTickWriter(cfg WriterConfig, runID uuid.UUID, db *pgxpool.Pool, logger *slog.Logger) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &TickWriter{
		cfg:    cfg,
		runID:  runID,
		input:  router.NewQueue[model.Tick](cfg.BatchSize),
		db:     db,
		logger: logger.With("component", "tick_writer"),
		batch:  make([]tickRow, 0, cfg.BatchSize),
	}
}

// Record queues a tick. It implements marketdata.TickRecorder and never
// blocks.
func (w *TickWriter) Record(t model.Tick) {
	w.input.Send(t)
}

// Start begins consuming ticks and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.consumeWg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"run_id", w.runID,
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued ticks, flushes, and shuts down.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	// Closing the queue lets consumeLoop drain and exit.
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.consumeWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out", "pending", w.input.Len())
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Final flush
	w.flush(ctx)

	w.logger.Info("tick writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *TickWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *TickWriter) consumeLoop() {
	defer w.consumeWg.Done()

	for {
		t, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleTick(t)
	}
}

// flushLoop periodically flushes the batch.
func (w *TickWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleTick transforms and adds a tick to the batch.
func (w *TickWriter) handleTick(t model.Tick) {
	row := w.transform(t)

	w.batchMu.Lock()
	w.metrics.Received++
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a tick to a row.
func (w *TickWriter) transform(t model.Tick) tickRow {
	return tickRow{
		RunID:   w.runID,
		Seq:     w.seq.Add(1),
		Symbol:  t.Symbol,
		Ts:      t.Time.UTC(),
		Bid:     t.Bid.String(),
		Ask:     t.Ask.String(),
		BidSize: optionalDecimal(t.BidSize, t.HasBidSize),
		AskSize: optionalDecimal(t.AskSize, t.HasAskSize),
		Mid:     t.Mid().String(),
		Spread:  t.Spread().String(),
	}
}

func optionalDecimal(d decimal.Decimal, ok bool) *string {
	if !ok {
		return nil
	}
	s := d.String()
	return &s
}

// flush writes the current batch to the database.
func (w *TickWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		metrics.WriterErrors.Inc()
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	metrics.WriterInserts.Add(float64(inserted))
	metrics.WriterFlushes.Inc()

	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TickWriter) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO quote_ticks (run_id, seq, symbol, ts, bid, ask, bid_size, ask_size, mid, spread)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (run_id, seq) DO NOTHING
		`, r.RunID, r.Seq, r.Symbol, r.Ts, r.Bid, r.Ask, r.BidSize, r.AskSize, r.Mid, r.Spread)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
