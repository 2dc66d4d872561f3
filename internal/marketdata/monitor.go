package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/metrics"
	"github.com/rickgao/quotefeed/internal/model"
)

// MonitorConfig holds staleness monitor configuration.
type MonitorConfig struct {
	Interval  time.Duration // Check cadence (default: 1s)
	Threshold time.Duration // Max age of the last update (default: 2s)
	LogEvery  time.Duration // Min gap between warnings per symbol (default: 5s)
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:  time.Second,
		Threshold: 2 * time.Second,
		LogEvery:  5 * time.Second,
	}
}

// Monitor periodically emits an error event for every symbol whose last
// update is older than the threshold. It only reads the store.
type Monitor struct {
	cfg     MonitorConfig
	store   *Store
	symbols []string
	sink    Sink
	logger  *slog.Logger

	lastWarn map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor for the given symbols.
func NewMonitor(cfg MonitorConfig, store *Store, symbols []string, sink Sink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	return &Monitor{
		cfg:      cfg,
		store:    store,
		symbols:  append([]string(nil), symbols...),
		sink:     sink,
		logger:   logger.With("component", "staleness"),
		lastWarn: make(map[string]time.Time),
	}
}

// Start begins the check loop.
func (m *Monitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("staleness monitor started",
		"interval", m.cfg.Interval,
		"threshold", m.cfg.Threshold,
	)
}

// Stop ends the check loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Info("staleness monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.Check(now)
		}
	}
}

// Check emits one error event per stale symbol and returns how many were
// stale. Symbols that have never updated are skipped.
func (m *Monitor) Check(now time.Time) int {
	stale := 0
	for _, symbol := range m.symbols {
		last, ok := m.store.LastUpdate(symbol)
		if !ok {
			continue
		}
		elapsed := now.Sub(last)
		if elapsed <= m.cfg.Threshold {
			continue
		}

		stale++
		reason := fmt.Sprintf("No data received in last %.1f seconds", elapsed.Seconds())
		ev := model.NewErrorEvent(model.KindStale, symbol, reason, now)
		metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
		m.sink.Emit(ev)

		// lastWarn is owned by the goroutine calling Check.
		if now.Sub(m.lastWarn[symbol]) >= m.cfg.LogEvery {
			m.lastWarn[symbol] = now
			m.logger.Warn("stale symbol", "symbol", symbol, "elapsed", elapsed.Round(100*time.Millisecond))
		}
	}
	return stale
}
