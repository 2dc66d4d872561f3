package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/metrics"
)

// Session is the protocol state machine for one quote session.
type Session struct {
	cfg     Config
	sender  Sender
	handler Handler
	logger  *slog.Logger

	seq  *Sequencer
	subs *Subscriptions

	// Held across seq allocation, encode and write.
	sendMu sync.Mutex

	mu                sync.RWMutex
	state             State
	heartbeatInterval time.Duration
	lastInboundSeq    int

	logonCh    chan struct{}
	logonOnce  sync.Once
	done       chan struct{}
	closeOnce  sync.Once
	notifyOnce sync.Once

	now func() time.Time
}

// New creates a session in the Disconnected state.
func New(cfg Config, sender Sender, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = noopHandler{}
	}
	if cfg.BeginString == "" {
		cfg.BeginString = fix.BeginStringFIX44
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	metrics.SessionState.Set(float64(StateDisconnected))

	return &Session{
		cfg:               cfg,
		sender:            sender,
		handler:           handler,
		logger:            logger.With("component", "session"),
		seq:               NewSequencer(),
		subs:              NewSubscriptions(),
		state:             StateDisconnected,
		heartbeatInterval: cfg.HeartbeatInterval,
		logonCh:           make(chan struct{}),
		done:              make(chan struct{}),
		now:               time.Now,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HeartbeatInterval returns the negotiated heartbeat interval.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeatInterval
}

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Sequencer returns the outbound counters.
func (s *Session) Sequencer() *Sequencer {
	return s.seq
}

// Subscriptions returns the outstanding request map.
func (s *Session) Subscriptions() *Subscriptions {
	return s.subs
}

func (s *Session) setState(to State) State {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from != to {
		metrics.SessionState.Set(float64(to))
		s.logger.Debug("state change", "from", from.String(), "to", to.String())
	}
	return from
}

// -----------------------------------------------------------------------------
// Outbound
// -----------------------------------------------------------------------------

// StartLogon sends a Logon and moves to LoggingOn.
func (s *Session) StartLogon() error {
	s.setState(StateLoggingOn)

	err := s.send(fix.MsgTypeLogon, func(m *fix.Message) {
		m.Add(fix.TagEncryptMethod, "0")
		m.AddInt(fix.TagHeartBtInt, int(s.cfg.HeartbeatInterval/time.Second))
		if s.cfg.ResetSeqNum {
			m.Add(fix.TagResetSeqNumFlag, "Y")
		}
		if s.cfg.Username != "" {
			m.Add(fix.TagUsername, s.cfg.Username)
		}
		if s.cfg.Password != "" {
			m.Add(fix.TagPassword, s.cfg.Password)
		}
	})
	if err != nil {
		return err
	}

	s.logger.Info("logon sent",
		"sender_comp_id", s.cfg.SenderCompID,
		"target_comp_id", s.cfg.TargetCompID,
		"heartbeat", s.cfg.HeartbeatInterval,
	)
	return nil
}

// AwaitLogon blocks until the logon is confirmed, the timeout elapses, ctx
// is cancelled, or the session closes. On timeout the session returns to
// Disconnected; no retry is attempted.
func (s *Session) AwaitLogon(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.logonCh:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.mu.Lock()
		if s.state == StateLoggingOn {
			s.state = StateDisconnected
			metrics.SessionState.Set(float64(StateDisconnected))
		}
		s.mu.Unlock()
		s.logger.Error("logon timeout", "timeout", timeout)
		return ErrLogonTimeout
	}
}

// SendHeartbeat sends a Heartbeat, echoing testReqID when non-empty.
func (s *Session) SendHeartbeat(testReqID string) error {
	return s.send(fix.MsgTypeHeartbeat, func(m *fix.Message) {
		if testReqID != "" {
			m.Add(fix.TagTestReqID, testReqID)
		}
	})
}

// SendLogout sends a Logout and moves to LoggingOut. It is a no-op error
// unless the session is LoggedOn.
func (s *Session) SendLogout(reason string) error {
	s.mu.Lock()
	if s.state != StateLoggedOn {
		s.mu.Unlock()
		return ErrNotLoggedOn
	}
	s.state = StateLoggingOut
	s.mu.Unlock()
	metrics.SessionState.Set(float64(StateLoggingOut))

	s.logger.Info("sending logout", "reason", reason)
	return s.send(fix.MsgTypeLogout, func(m *fix.Message) {
		if reason != "" {
			m.Add(fix.TagText, reason)
		}
	})
}

// SendMarketDataRequest subscribes to top-of-book bid and offer for symbol
// and returns the allocated request id.
func (s *Session) SendMarketDataRequest(symbol string, kind SubscriptionKind) (string, error) {
	reqID := s.seq.NextRequestID()
	s.subs.Add(Subscription{
		ReqID:  reqID,
		Symbol: symbol,
		Kind:   kind,
		SentAt: s.now(),
	})

	err := s.send(fix.MsgTypeMarketDataRequest, func(m *fix.Message) {
		m.Add(fix.TagMDReqID, reqID)
		m.Add(fix.TagSubscriptionRequestType, kind.requestType())
		m.AddInt(fix.TagMarketDepth, 1)
		m.Add(fix.TagMDUpdateType, "0")
		m.AddInt(fix.TagNoRelatedSym, 1)
		m.Add(fix.TagSymbol, symbol)
		m.AddInt(fix.TagProduct, 4)
		m.Add(fix.TagSecurityType, SecurityType(symbol))
		m.AddInt(fix.TagNoMDEntryTypes, 2)
		m.Add(fix.TagMDEntryType, fix.EntryTypeBid)
		m.Add(fix.TagMDEntryType, fix.EntryTypeOffer)
	})
	if err != nil {
		s.subs.Remove(reqID)
		return "", err
	}

	s.logger.Info("market data request sent", "symbol", symbol, "req_id", reqID, "kind", kind.String())
	return reqID, nil
}

// send builds a message with the standard header and writes it. Failures are
// logged and returned; nothing is retried and the sequence number is not
// reused.
func (s *Session) send(msgType string, body func(m *fix.Message)) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	seq := s.seq.NextSeqNum()

	m := fix.NewMessage(s.cfg.BeginString, msgType)
	m.Add(fix.TagSenderCompID, s.cfg.SenderCompID)
	m.Add(fix.TagTargetCompID, s.cfg.TargetCompID)
	if s.cfg.DeliverToCompID != "" {
		m.Add(fix.TagDeliverToCompID, s.cfg.DeliverToCompID)
	}
	m.AddInt(fix.TagMsgSeqNum, seq)
	if s.cfg.SenderSubID != "" {
		m.Add(fix.TagSenderSubID, s.cfg.SenderSubID)
	}
	m.AddTime(fix.TagSendingTime, s.now())
	if body != nil {
		body(m)
	}

	if err := s.sender.Send(m.Build()); err != nil {
		metrics.SendErrors.Inc()
		s.logger.Warn("send failed", "msg_type", fix.MsgTypeName(msgType), "seq", seq, "error", err)
		return fmt.Errorf("send %s: %w", fix.MsgTypeName(msgType), err)
	}

	metrics.MessagesSent.WithLabelValues(msgType).Inc()
	s.logger.Debug("sent", "msg_type", fix.MsgTypeName(msgType), "seq", seq, "raw", m.String())
	return nil
}

// -----------------------------------------------------------------------------
// Inbound
// -----------------------------------------------------------------------------

// OnMessage dispatches one inbound message by MsgType.
func (s *Session) OnMessage(msg *fix.Message, receivedAt time.Time) {
	msgType := msg.MsgType()
	metrics.MessagesReceived.WithLabelValues(msgType).Inc()
	s.logger.Debug("received", "msg_type", fix.MsgTypeName(msgType), "raw", msg.String())

	s.trackInboundSeq(msg)

	switch msgType {
	case fix.MsgTypeLogon:
		s.handleLogon(msg)

	case fix.MsgTypeHeartbeat:
		// Liveness only.

	case fix.MsgTypeTestRequest:
		testReqID := msg.GetString(fix.TagTestReqID)
		s.logger.Debug("test request", "test_req_id", testReqID)
		s.SendHeartbeat(testReqID)

	case fix.MsgTypeLogout:
		s.handleLogout(msg)

	case fix.MsgTypeMarketDataSnapshot:
		s.handler.OnSnapshot(msg, receivedAt)

	case fix.MsgTypeMarketDataReject:
		s.handleMarketDataReject(msg)

	case fix.MsgTypeReject:
		s.logger.Warn("session reject",
			"ref_seq_num", msg.GetString(fix.TagRefSeqNum),
			"text", msg.GetString(fix.TagText),
		)

	case fix.MsgTypeBusinessReject:
		s.logger.Warn("business reject",
			"ref_seq_num", msg.GetString(fix.TagRefSeqNum),
			"text", msg.GetString(fix.TagText),
		)

	case fix.MsgTypeMarketDataIncremental, fix.MsgTypeMassQuote:
		s.logger.Debug("ignoring message", "msg_type", fix.MsgTypeName(msgType), "symbol", msg.GetString(fix.TagSymbol))

	default:
		s.logger.Info("unhandled message type", "msg_type", msgType)
	}
}

func (s *Session) handleLogon(msg *fix.Message) {
	s.mu.Lock()
	if s.state != StateLoggingOn {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("unexpected logon", "state", state.String())
		return
	}
	s.state = StateLoggedOn
	if hb, err := msg.GetInt(fix.TagHeartBtInt); err == nil && hb > 0 {
		s.heartbeatInterval = time.Duration(hb) * time.Second
	}
	interval := s.heartbeatInterval
	s.mu.Unlock()

	metrics.SessionState.Set(float64(StateLoggedOn))
	s.logonOnce.Do(func() { close(s.logonCh) })
	s.logger.Info("logon confirmed", "heartbeat", interval)
}

func (s *Session) handleLogout(msg *fix.Message) {
	text := msg.GetString(fix.TagText)

	s.mu.RLock()
	prev := s.state
	s.mu.RUnlock()
	if prev == StateClosed {
		return
	}

	s.logger.Info("logout received", "text", text, "state", prev.String())

	// Server-initiated: acknowledge before closing.
	if prev == StateLoggedOn {
		s.setState(StateLoggingOut)
		s.send(fix.MsgTypeLogout, nil)
	}

	s.markClosed()
	s.notifyOnce.Do(s.handler.OnSessionClosed)
}

func (s *Session) handleMarketDataReject(msg *fix.Message) {
	reqID := msg.GetString(fix.TagMDReqID)
	reason := msg.GetString(fix.TagText)
	if reason == "" {
		if code, ok := msg.Get(fix.TagMDReqRejReason); ok {
			reason = RejectReasonText(code)
		} else {
			reason = "Market data request rejected"
		}
	}

	symbol := "Unknown"
	if sub, ok := s.subs.Remove(reqID); ok {
		symbol = sub.Symbol
	} else if sym := msg.GetString(fix.TagSymbol); sym != "" {
		symbol = sym
	}

	s.logger.Warn("market data request rejected", "symbol", symbol, "req_id", reqID, "reason", reason)
	switch {
	case strings.Contains(reason, "InvalidCurrencyPair"):
		s.logger.Warn("symbol not recognised by the server; check the instrument name format", "symbol", symbol)
	case strings.Contains(reason, "SenderSubIDNotSet"):
		s.logger.Warn("server requires SenderSubID; set session.sender_sub_id")
	}

	s.handler.OnMarketDataReject(symbol, reason)
}

// trackInboundSeq logs discontinuities in the server's MsgSeqNum.
func (s *Session) trackInboundSeq(msg *fix.Message) {
	seq, err := msg.GetInt(fix.TagMsgSeqNum)
	if err != nil {
		return
	}

	s.mu.Lock()
	last := s.lastInboundSeq
	s.lastInboundSeq = seq
	s.mu.Unlock()

	if last == 0 || seq == last+1 {
		return
	}
	// Logon with ResetSeqNumFlag restarts the stream at 1.
	if seq == 1 && msg.MsgType() == fix.MsgTypeLogon {
		return
	}

	metrics.SequenceGaps.Inc()
	s.logger.Warn("inbound sequence discontinuity", "expected", last+1, "got", seq)
}

// Close marks the session Closed without notifying the handler. It is safe
// to call more than once.
func (s *Session) Close() {
	s.markClosed()
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.subs.Clear()
		close(s.done)
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

var currencyCodes = []string{"EUR", "USD", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD"}

// SecurityType classifies a symbol as FX ("FOR") when it contains a major
// currency code, otherwise as a future ("FUT").
func SecurityType(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, c := range currencyCodes {
		if strings.Contains(upper, c) {
			return "FOR"
		}
	}
	return "FUT"
}

var rejectReasons = map[string]string{
	"0": "Unknown symbol",
	"1": "Duplicate MDReqID",
	"2": "Insufficient bandwidth",
	"3": "Insufficient permissions",
	"4": "Unsupported SubscriptionRequestType",
	"5": "Unsupported MarketDepth",
	"6": "Unsupported MDUpdateType",
	"7": "Unsupported AggregatedBook",
	"8": "Unsupported MDEntryType",
	"9": "Unsupported TradingSessionID",
	"A": "Unsupported Scope",
	"B": "Unsupported OpenCloseSettlFlag",
	"C": "Unsupported MDImplicitDelete",
}

// RejectReasonText describes an MDReqRejReason (281) code.
func RejectReasonText(code string) string {
	if r, ok := rejectReasons[code]; ok {
		return r
	}
	return "Rejected (reason " + code + ")"
}
