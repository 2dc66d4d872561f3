package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// EntryType is the MDEntryType of a market-data entry.
type EntryType string

const (
	EntryBid   EntryType = "0"
	EntryOffer EntryType = "1"
)

// Entry is one decoded market-data group entry.
type Entry struct {
	Type    EntryType
	Price   decimal.Decimal
	Size    decimal.Decimal
	HasSize bool // Size was present and numeric
}

// Tick is one historical top-of-book observation for a symbol.
type Tick struct {
	Time    time.Time
	Symbol  string
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal

	// Sizes are optional on the wire; zero values are meaningless when unset.
	HasBidSize bool
	HasAskSize bool
}

// Spread returns ask - bid.
func (t Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Mid returns (bid + ask) / 2.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Quote is the best bid/ask pair used for change detection.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Equal reports whether both sides are numerically equal.
func (q Quote) Equal(o Quote) bool {
	return q.Bid.Equal(o.Bid) && q.Ask.Equal(o.Ask)
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// EventKind classifies an emitted event. It is not serialised.
type EventKind string

const (
	KindPrice      EventKind = "price"
	KindIncomplete EventKind = "incomplete"
	KindReject     EventKind = "reject"
	KindStale      EventKind = "stale"
	KindLogout     EventKind = "logout"
)

// LogoutReason is the err value carried by the session termination event.
const LogoutReason = "LOGOUT"

// Event is the system's output record. On success Err is nil and the four
// price fields are set; on any error the price fields are nil.
type Event struct {
	Ticker   string   `json:"ticker"`
	Bid      *float64 `json:"bid"`
	Ask      *float64 `json:"ask"`
	Midprice *float64 `json:"midprice"`
	Spread   *float64 `json:"spread"`
	Err      *string  `json:"err"`

	Kind EventKind `json:"-"`
	Time time.Time `json:"-"`
}

// NewPriceEvent builds a success event. Mid and spread are computed in
// decimal before conversion so that 1.10000/1.10015 yields 1.100075/0.00015.
func NewPriceEvent(symbol string, bid, ask decimal.Decimal, at time.Time) Event {
	t := Tick{Bid: bid, Ask: ask}
	return Event{
		Ticker:   symbol,
		Bid:      float(bid),
		Ask:      float(ask),
		Midprice: float(t.Mid()),
		Spread:   float(t.Spread()),
		Kind:     KindPrice,
		Time:     at,
	}
}

// NewErrorEvent builds an error event with null price fields.
func NewErrorEvent(kind EventKind, symbol, reason string, at time.Time) Event {
	return Event{
		Ticker: symbol,
		Err:    &reason,
		Kind:   kind,
		Time:   at,
	}
}

// NewLogoutEvent builds the session termination event.
func NewLogoutEvent(at time.Time) Event {
	return NewErrorEvent(KindLogout, "", LogoutReason, at)
}

// IsError reports whether the event carries an error.
func (e Event) IsError() bool {
	return e.Err != nil
}

// JSON encodes the event as a single JSON object.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

func float(d decimal.Decimal) *float64 {
	f := d.InexactFloat64()
	return &f
}
