package marketdata

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/metrics"
	"github.com/rickgao/quotefeed/internal/model"
)

// Sink receives emitted events. Emit must not block for long; it is called
// from the receive activity and the staleness monitor.
type Sink interface {
	Emit(ev model.Event)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(model.Event)

func (f SinkFunc) Emit(ev model.Event) {
	f(ev)
}

// TickRecorder receives every appended tick.
type TickRecorder interface {
	Record(t model.Tick)
}

// Listener is notified of per-symbol outcomes. Methods are invoked
// synchronously from the receive activity.
type Listener interface {
	OnMarketDataSuccess(symbol string)
	OnMarketDataReject(symbol, reason string)
	OnLogout()
	OnTick(symbol string)
}

// Config holds pipeline configuration.
type Config struct {
	GroupMode    GroupMode // nested (default) or positional
	HistoryLimit int       // Max retained ticks per symbol, 0 = unbounded
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{GroupMode: GroupNested}
}

// Pipeline applies snapshots to the store and emits events.
type Pipeline struct {
	cfg      Config
	store    *Store
	sink     Sink
	listener Listener
	recorder TickRecorder
	logger   *slog.Logger

	// Previous-price cache for change detection.
	mu   sync.Mutex
	prev map[string]model.Quote

	now func() time.Time
}

// NewPipeline creates a pipeline. listener and recorder may be nil.
func NewPipeline(cfg Config, store *Store, sink Sink, listener Listener, recorder TickRecorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GroupMode == "" {
		cfg.GroupMode = GroupNested
	}
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		listener: listener,
		recorder: recorder,
		logger:   logger.With("component", "pipeline"),
		prev:     make(map[string]model.Quote),
		now:      time.Now,
	}
}

// Store returns the underlying history store.
func (p *Pipeline) Store() *Store {
	return p.store
}

type applyResult int

const (
	applied applyResult = iota
	incomplete
	outOfOrder
)

// OnSnapshot applies one MarketDataSnapshotFullRefresh.
func (p *Pipeline) OnSnapshot(msg *fix.Message, receivedAt time.Time) {
	symbol := msg.GetString(fix.TagSymbol)
	if symbol == "" {
		p.logger.Warn("snapshot without symbol")
		return
	}
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	entries, err := Extract(p.cfg.GroupMode, msg.Fields(), p.logger)
	if err != nil {
		var ge *GroupError
		if errors.As(err, &ge) {
			metrics.GroupErrors.Inc()
		}
		p.logger.Warn("inconsistent market data group", "symbol", symbol, "error", err)
	}

	// Last writer wins within one message.
	var bid, ask *model.Entry
	for i := range entries {
		switch entries[i].Type {
		case model.EntryBid:
			bid = &entries[i]
		case model.EntryOffer:
			ask = &entries[i]
		}
	}

	if bid == nil && ask == nil {
		p.logger.Warn("no bid or offer in snapshot", "symbol", symbol, "entries", len(entries))
		p.emit(model.NewErrorEvent(model.KindIncomplete, symbol,
			fmt.Sprintf("No valid market data extracted for %s", symbol), receivedAt))
		return
	}
	if bid == nil || ask == nil {
		p.logger.Debug("partial snapshot", "symbol", symbol, "has_bid", bid != nil, "has_ask", ask != nil)
	}

	sendingTime, _ := msg.GetTime(fix.TagSendingTime)

	var (
		result   applyResult
		tick     model.Tick
		missing  string
		bidShown = "None"
		askShown = "None"
	)
	p.store.update(symbol, func(h *History) {
		if !sendingTime.IsZero() && sendingTime.Before(h.LastSendingTime) {
			result = outOfOrder
			return
		}
		if !sendingTime.IsZero() {
			h.LastSendingTime = sendingTime
		}

		if bid != nil {
			h.Bid, h.HasBid = bid.Price, true
			if bid.HasSize {
				h.BidSize, h.HasBidSize = bid.Size, true
			}
		}
		if ask != nil {
			h.Ask, h.HasAsk = ask.Price, true
			if ask.HasSize {
				h.AskSize, h.HasAskSize = ask.Size, true
			}
		}

		if !h.HasBid || !h.HasAsk {
			result = incomplete
			if h.HasBid {
				bidShown = h.Bid.String()
				missing = "ask"
			}
			if h.HasAsk {
				askShown = h.Ask.String()
				missing = "bid"
			}
			return
		}

		tick = model.Tick{
			Time:    receivedAt,
			Symbol:  symbol,
			Bid:     h.Bid,
			Ask:     h.Ask,
			BidSize: h.BidSize,
			AskSize: h.AskSize,

			HasBidSize: h.HasBidSize,
			HasAskSize: h.HasAskSize,
		}
		p.store.appendTick(h, tick)
		h.LastUpdate = receivedAt
		result = applied
	})

	switch result {
	case outOfOrder:
		p.logger.Warn("discarding out-of-order snapshot", "symbol", symbol, "sending_time", sendingTime)
		return
	case incomplete:
		p.logger.Warn("incomplete data", "symbol", symbol, "missing", missing)
		p.emit(model.NewErrorEvent(model.KindIncomplete, symbol,
			fmt.Sprintf("Incomplete data for %s: bid=%s, ask=%s", symbol, bidShown, askShown), receivedAt))
		return
	}

	metrics.TicksAppended.Inc()
	if p.recorder != nil {
		p.recorder.Record(tick)
	}
	if p.listener != nil {
		p.listener.OnMarketDataSuccess(symbol)
	}

	q := model.Quote{Bid: tick.Bid, Ask: tick.Ask}
	p.mu.Lock()
	last, seen := p.prev[symbol]
	changed := !seen || !last.Equal(q)
	if changed {
		p.prev[symbol] = q
	}
	p.mu.Unlock()

	if changed {
		p.emit(model.NewPriceEvent(symbol, tick.Bid, tick.Ask, receivedAt))
	}
	if p.listener != nil {
		p.listener.OnTick(symbol)
	}
}

// OnMarketDataReject emits an error event for a rejected subscription.
func (p *Pipeline) OnMarketDataReject(symbol, reason string) {
	p.emit(model.NewErrorEvent(model.KindReject, symbol, reason, p.now()))
	if p.listener != nil {
		p.listener.OnMarketDataReject(symbol, reason)
	}
}

// OnSessionClosed emits the LOGOUT event.
func (p *Pipeline) OnSessionClosed() {
	p.emit(model.NewLogoutEvent(p.now()))
	if p.listener != nil {
		p.listener.OnLogout()
	}
}

func (p *Pipeline) emit(ev model.Event) {
	metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	p.sink.Emit(ev)
}
