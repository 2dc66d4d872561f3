package session

import (
	"errors"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
)

// Errors
var (
	ErrLogonTimeout  = errors.New("logon not confirmed before timeout")
	ErrSessionClosed = errors.New("session closed")
	ErrNotLoggedOn   = errors.New("session not logged on")
)

// State is the session lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateLoggingOn
	StateLoggedOn
	StateLoggingOut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLoggingOn:
		return "logging_on"
	case StateLoggedOn:
		return "logged_on"
	case StateLoggingOut:
		return "logging_out"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriptionKind selects SubscriptionRequestType (263).
type SubscriptionKind int

const (
	SnapshotPlusUpdates SubscriptionKind = iota
	SnapshotOnly
)

func (k SubscriptionKind) String() string {
	if k == SnapshotOnly {
		return "snapshot"
	}
	return "snapshot_updates"
}

// requestType returns the wire value for tag 263.
func (k SubscriptionKind) requestType() string {
	if k == SnapshotOnly {
		return "0"
	}
	return "1"
}

// ParseSubscriptionKind parses a config value. Unknown values fall back to
// SnapshotPlusUpdates.
func ParseSubscriptionKind(s string) SubscriptionKind {
	if s == "snapshot" {
		return SnapshotOnly
	}
	return SnapshotPlusUpdates
}

// Config holds session identity and credentials.
type Config struct {
	BeginString       string
	SenderCompID      string
	TargetCompID      string
	SenderSubID       string // Optional (50)
	DeliverToCompID   string // Optional (128)
	Username          string
	Password          string
	HeartbeatInterval time.Duration
	ResetSeqNum       bool // Send 141=Y on logon
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BeginString:       fix.BeginStringFIX44,
		HeartbeatInterval: 20 * time.Second,
		ResetSeqNum:       true,
	}
}

// Sender writes encoded frames to the transport.
type Sender interface {
	Send(data []byte) error
}

// Handler receives session events. Methods are invoked synchronously from
// the receive activity.
type Handler interface {
	// OnSnapshot is called for every MarketDataSnapshotFullRefresh.
	OnSnapshot(msg *fix.Message, receivedAt time.Time)

	// OnMarketDataReject is called when a subscription is rejected.
	OnMarketDataReject(symbol, reason string)

	// OnSessionClosed is called once when the server ends the session.
	OnSessionClosed()
}

type noopHandler struct{}

func (noopHandler) OnSnapshot(*fix.Message, time.Time) {}
func (noopHandler) OnMarketDataReject(string, string) {}
func (noopHandler) OnSessionClosed() {}
