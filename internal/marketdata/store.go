package marketdata

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/quotefeed/internal/model"
)

// History is the per-symbol top-of-book record.
type History struct {
	Symbol  string
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
	HasBid  bool
	HasAsk  bool

	HasBidSize bool
	HasAskSize bool

	LastUpdate      time.Time // Last complete update, read by the staleness monitor
	LastSendingTime time.Time // SendingTime of the last applied snapshot
	Ticks           []model.Tick
}

// Store holds a History per symbol. Histories are created lazily and never
// deleted.
type Store struct {
	mu      sync.RWMutex
	symbols map[string]*History
	limit   int // Max retained ticks per symbol, 0 = unbounded
}

// NewStore creates an empty store.
func NewStore(historyLimit int) *Store {
	return &Store{
		symbols: make(map[string]*History),
		limit:   historyLimit,
	}
}

// update runs fn on the symbol's history under the write lock.
func (s *Store) update(symbol string, fn func(h *History)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.symbols[symbol]
	if !ok {
		h = &History{Symbol: symbol}
		s.symbols[symbol] = h
	}
	fn(h)
}

// appendTick appends to the history, trimming from the front when a limit
// is set. Caller holds the write lock.
func (s *Store) appendTick(h *History, t model.Tick) {
	h.Ticks = append(h.Ticks, t)
	if s.limit > 0 && len(h.Ticks) > s.limit {
		drop := len(h.Ticks) - s.limit
		h.Ticks = append(h.Ticks[:0:0], h.Ticks[drop:]...)
	}
}

// Snapshot returns a copy of the symbol's history.
func (s *Store) Snapshot(symbol string) (History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.symbols[symbol]
	if !ok {
		return History{}, false
	}
	cp := *h
	cp.Ticks = append([]model.Tick(nil), h.Ticks...)
	return cp, true
}

// LastUpdate returns the symbol's last complete update time.
func (s *Store) LastUpdate(symbol string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.symbols[symbol]
	if !ok || h.LastUpdate.IsZero() {
		return time.Time{}, false
	}
	return h.LastUpdate, true
}

// TickCount returns the number of retained ticks for the symbol.
func (s *Store) TickCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.symbols[symbol]; ok {
		return len(h.Ticks)
	}
	return 0
}

// Symbols returns every symbol with a history, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}
