package market

import (
	"log/slog"
	"time"
)

// Status is an instrument's subscription status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
)

// ChangeBufferSize is the capacity of the change channel.
const ChangeBufferSize = 256

// Instrument is the registry's view of one symbol.
type Instrument struct {
	Symbol       string
	Status       Status
	RejectReason string
	FirstDataAt  time.Time
	Snapshots    int64 // Complete snapshots applied
	Ticks        int64 // OnTick notifications
}

// StatusChange is published when an instrument changes status.
type StatusChange struct {
	Symbol    string
	OldStatus Status
	NewStatus Status
	Reason    string
	At        time.Time
}

// Summary counts instruments by status.
type Summary struct {
	Tested   int      `json:"tested"`
	Active   int      `json:"active"`
	Rejected int      `json:"rejected"`
	Pending  int      `json:"pending"`
	Failed   []string `json:"failed,omitempty"`
}

// Registry tracks instrument status.
type Registry struct {
	logger *slog.Logger
	state  *registryState
}

// NewRegistry creates a registry with every symbol pending.
func NewRegistry(symbols []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger.With("component", "registry"),
		state:  newState(),
	}
	for _, s := range symbols {
		r.state.add(s)
	}
	return r
}

// Symbols returns configured symbols in insertion order.
func (r *Registry) Symbols() []string {
	return r.state.symbols()
}

// Get returns an instrument by symbol.
func (r *Registry) Get(symbol string) (Instrument, bool) {
	return r.state.get(symbol)
}

// Summary returns the current counts.
func (r *Registry) Summary() Summary {
	return r.state.summary()
}

// SubscribeChanges returns the status change channel.
func (r *Registry) SubscribeChanges() <-chan StatusChange {
	return r.state.changes
}

// LogSummary writes the current counts to the log.
func (r *Registry) LogSummary() {
	s := r.Summary()
	r.logger.Info("instrument summary",
		"tested", s.Tested,
		"active", s.Active,
		"rejected", s.Rejected,
		"pending", s.Pending,
		"failed", s.Failed,
	)
}

// OnMarketDataSuccess marks the instrument active.
func (r *Registry) OnMarketDataSuccess(symbol string) {
	first, changed := r.state.markActive(symbol, time.Now())
	if first {
		r.logger.Info("instrument active", "symbol", symbol)
	}
	if changed != nil {
		r.state.notifyChange(*changed)
	}
}

// OnMarketDataReject marks the instrument rejected.
func (r *Registry) OnMarketDataReject(symbol, reason string) {
	changed := r.state.markRejected(symbol, reason, time.Now())
	r.logger.Warn("instrument rejected", "symbol", symbol, "reason", reason)
	if changed != nil {
		r.state.notifyChange(*changed)
	}
}

// OnLogout records that a Logout was received, whichever side initiated it.
func (r *Registry) OnLogout() {
	r.logger.Info("session logged out")
}

// OnTick counts a tick.
func (r *Registry) OnTick(symbol string) {
	r.state.countTick(symbol)
}
