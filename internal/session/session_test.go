package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
)

// fakeSender records every frame written.
type fakeSender struct {
	mu     sync.Mutex
	frames []*fix.Message
	err    error
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	msg, err := fix.Decode(data)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, msg)
	return nil
}

func (f *fakeSender) sent() []*fix.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fix.Message(nil), f.frames...)
}

func (f *fakeSender) last() *fix.Message {
	s := f.sent()
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// fakeHandler records callbacks.
type fakeHandler struct {
	mu        sync.Mutex
	snapshots int
	rejects   []string
	reasons   []string
	closed    int
}

func (h *fakeHandler) OnSnapshot(*fix.Message, time.Time) {
	h.mu.Lock()
	h.snapshots++
	h.mu.Unlock()
}

func (h *fakeHandler) OnMarketDataReject(symbol, reason string) {
	h.mu.Lock()
	h.rejects = append(h.rejects, symbol)
	h.reasons = append(h.reasons, reason)
	h.mu.Unlock()
}

func (h *fakeHandler) OnSessionClosed() {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SenderCompID = "CLIENT"
	cfg.TargetCompID = "SERVER"
	cfg.SenderSubID = "QUOTE"
	cfg.Username = "user"
	cfg.Password = "secret"
	return cfg
}

func newTestSession() (*Session, *fakeSender, *fakeHandler) {
	sender := &fakeSender{}
	handler := &fakeHandler{}
	return New(testConfig(), sender, handler, nil), sender, handler
}

func inbound(msgType string, seq int) *fix.Message {
	return fix.NewMessage(fix.BeginStringFIX44, msgType).AddInt(fix.TagMsgSeqNum, seq)
}

func logOn(t *testing.T, s *Session) {
	t.Helper()
	if err := s.StartLogon(); err != nil {
		t.Fatalf("StartLogon: %v", err)
	}
	s.OnMessage(inbound(fix.MsgTypeLogon, 1).AddInt(fix.TagHeartBtInt, 30), time.Now())
	if s.State() != StateLoggedOn {
		t.Fatalf("State() = %v, want logged_on", s.State())
	}
}

func TestSession_StartLogon(t *testing.T) {
	s, sender, _ := newTestSession()

	if err := s.StartLogon(); err != nil {
		t.Fatalf("StartLogon: %v", err)
	}
	if s.State() != StateLoggingOn {
		t.Errorf("State() = %v, want logging_on", s.State())
	}

	msg := sender.last()
	if msg == nil {
		t.Fatal("no logon sent")
	}

	want := map[int]string{
		fix.TagMsgType:         fix.MsgTypeLogon,
		fix.TagSenderCompID:    "CLIENT",
		fix.TagTargetCompID:    "SERVER",
		fix.TagSenderSubID:     "QUOTE",
		fix.TagMsgSeqNum:       "1",
		fix.TagEncryptMethod:   "0",
		fix.TagHeartBtInt:      "20",
		fix.TagResetSeqNumFlag: "Y",
		fix.TagUsername:        "user",
		fix.TagPassword:        "secret",
	}
	for tag, v := range want {
		if got := msg.GetString(tag); got != v {
			t.Errorf("tag %d = %q, want %q", tag, got, v)
		}
	}
	if !msg.Has(fix.TagSendingTime) {
		t.Error("SendingTime missing")
	}
	if msg.Has(fix.TagDeliverToCompID) {
		t.Error("DeliverToCompID should be omitted when empty")
	}
}

func TestSession_LogonConfirmed(t *testing.T) {
	s, _, _ := newTestSession()
	s.StartLogon()

	// Non-logon messages leave LoggingOn unchanged.
	s.OnMessage(inbound(fix.MsgTypeHeartbeat, 1), time.Now())
	if s.State() != StateLoggingOn {
		t.Errorf("State() = %v, want logging_on", s.State())
	}

	go s.OnMessage(inbound(fix.MsgTypeLogon, 2).AddInt(fix.TagHeartBtInt, 30), time.Now())

	if err := s.AwaitLogon(context.Background(), time.Second); err != nil {
		t.Fatalf("AwaitLogon: %v", err)
	}
	if s.State() != StateLoggedOn {
		t.Errorf("State() = %v, want logged_on", s.State())
	}
	if got := s.HeartbeatInterval(); got != 30*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 30s", got)
	}
}

func TestSession_LogonTimeout(t *testing.T) {
	s, _, _ := newTestSession()
	s.StartLogon()

	err := s.AwaitLogon(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrLogonTimeout) {
		t.Fatalf("AwaitLogon = %v, want ErrLogonTimeout", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestSession_LogonSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("broken pipe")}
	s := New(testConfig(), sender, nil, nil)

	if err := s.StartLogon(); err == nil {
		t.Fatal("expected StartLogon error")
	}
	if err := s.AwaitLogon(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrLogonTimeout) {
		t.Errorf("AwaitLogon = %v, want ErrLogonTimeout", err)
	}
}

func TestSession_SequenceNumbersStrictlyIncrease(t *testing.T) {
	s, sender, _ := newTestSession()
	logOn(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SendHeartbeat("")
		}()
		go func() {
			defer wg.Done()
			s.SendMarketDataRequest("EUR/USD", SnapshotPlusUpdates)
		}()
	}
	wg.Wait()

	frames := sender.sent()
	if len(frames) != 41 {
		t.Fatalf("sent %d frames, want 41", len(frames))
	}
	for i, msg := range frames {
		seq, err := msg.GetInt(fix.TagMsgSeqNum)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if seq != i+1 {
			t.Errorf("frame %d MsgSeqNum = %d, want %d", i, seq, i+1)
		}
	}
}

func TestSession_SendFailureDoesNotReuseSeq(t *testing.T) {
	s, sender, _ := newTestSession()
	logOn(t, s)

	sender.mu.Lock()
	sender.err = errors.New("write failed")
	sender.mu.Unlock()
	if err := s.SendHeartbeat(""); err == nil {
		t.Fatal("expected send error")
	}

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	s.SendHeartbeat("")

	if seq, _ := sender.last().GetInt(fix.TagMsgSeqNum); seq != 3 {
		t.Errorf("MsgSeqNum after failed send = %d, want 3", seq)
	}
}

func TestSession_MarketDataRequest(t *testing.T) {
	s, sender, _ := newTestSession()
	logOn(t, s)

	reqID, err := s.SendMarketDataRequest("EUR/USD", SnapshotPlusUpdates)
	if err != nil {
		t.Fatalf("SendMarketDataRequest: %v", err)
	}

	msg := sender.last()
	checks := map[int]string{
		fix.TagMsgType:                 fix.MsgTypeMarketDataRequest,
		fix.TagMDReqID:                 reqID,
		fix.TagSubscriptionRequestType: "1",
		fix.TagMarketDepth:             "1",
		fix.TagMDUpdateType:            "0",
		fix.TagNoRelatedSym:            "1",
		fix.TagSymbol:                  "EUR/USD",
		fix.TagProduct:                 "4",
		fix.TagSecurityType:            "FOR",
		fix.TagNoMDEntryTypes:          "2",
	}
	for tag, v := range checks {
		if got := msg.GetString(tag); got != v {
			t.Errorf("tag %d = %q, want %q", tag, got, v)
		}
	}

	var types []string
	for _, f := range msg.Fields() {
		if f.Tag == fix.TagMDEntryType {
			types = append(types, f.Value)
		}
	}
	if len(types) != 2 || types[0] != "0" || types[1] != "1" {
		t.Errorf("MDEntryTypes = %v, want [0 1]", types)
	}

	sub, ok := s.Subscriptions().Resolve(reqID)
	if !ok || sub.Symbol != "EUR/USD" {
		t.Errorf("Resolve(%q) = %+v, %v", reqID, sub, ok)
	}

	id2, _ := s.SendMarketDataRequest("GBP/USD", SnapshotOnly)
	if id2 == reqID {
		t.Errorf("request ids repeated: %q", id2)
	}
	if got := sender.last().GetString(fix.TagSubscriptionRequestType); got != "0" {
		t.Errorf("SubscriptionRequestType = %q, want 0", got)
	}
}

func TestSession_TestRequestGetsHeartbeat(t *testing.T) {
	s, sender, _ := newTestSession()
	logOn(t, s)

	s.OnMessage(inbound(fix.MsgTypeTestRequest, 2).Add(fix.TagTestReqID, "TR-42"), time.Now())

	msg := sender.last()
	if msg.MsgType() != fix.MsgTypeHeartbeat {
		t.Fatalf("reply MsgType = %q, want heartbeat", msg.MsgType())
	}
	if got := msg.GetString(fix.TagTestReqID); got != "TR-42" {
		t.Errorf("TestReqID = %q, want TR-42", got)
	}
}

func TestSession_MarketDataReject(t *testing.T) {
	s, _, handler := newTestSession()
	logOn(t, s)

	reqID, _ := s.SendMarketDataRequest("GBP/JPY", SnapshotPlusUpdates)

	s.OnMessage(inbound(fix.MsgTypeMarketDataReject, 2).
		Add(fix.TagMDReqID, reqID).
		Add(fix.TagText, "InvalidCurrencyPair"), time.Now())

	if len(handler.rejects) != 1 || handler.rejects[0] != "GBP/JPY" {
		t.Fatalf("rejects = %v, want [GBP/JPY]", handler.rejects)
	}
	if handler.reasons[0] != "InvalidCurrencyPair" {
		t.Errorf("reason = %q, want InvalidCurrencyPair", handler.reasons[0])
	}
	if _, ok := s.Subscriptions().Resolve(reqID); ok {
		t.Error("rejected subscription should be removed")
	}
}

func TestSession_MarketDataRejectUnknownRequest(t *testing.T) {
	s, _, handler := newTestSession()
	logOn(t, s)

	s.OnMessage(inbound(fix.MsgTypeMarketDataReject, 2).
		Add(fix.TagMDReqID, "999").
		Add(fix.TagMDReqRejReason, "0"), time.Now())

	if len(handler.rejects) != 1 || handler.rejects[0] != "Unknown" {
		t.Fatalf("rejects = %v, want [Unknown]", handler.rejects)
	}
	if handler.reasons[0] != "Unknown symbol" {
		t.Errorf("reason = %q, want Unknown symbol", handler.reasons[0])
	}
	if s.State() != StateLoggedOn {
		t.Errorf("State() = %v, want logged_on", s.State())
	}
}

func TestSession_ServerLogout(t *testing.T) {
	s, sender, handler := newTestSession()
	logOn(t, s)

	s.OnMessage(inbound(fix.MsgTypeLogout, 2).Add(fix.TagText, "bye"), time.Now())
	s.OnMessage(inbound(fix.MsgTypeLogout, 3), time.Now())

	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if handler.closed != 1 {
		t.Errorf("OnSessionClosed called %d times, want 1", handler.closed)
	}
	if sender.last().MsgType() != fix.MsgTypeLogout {
		t.Error("expected logout acknowledgement")
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestSession_ClientLogout(t *testing.T) {
	s, sender, handler := newTestSession()
	logOn(t, s)

	if err := s.SendLogout("shutdown"); err != nil {
		t.Fatalf("SendLogout: %v", err)
	}
	if s.State() != StateLoggingOut {
		t.Errorf("State() = %v, want logging_out", s.State())
	}
	before := len(sender.sent())

	s.OnMessage(inbound(fix.MsgTypeLogout, 2), time.Now())

	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if len(sender.sent()) != before {
		t.Error("logout reply while logging out should not be acknowledged again")
	}
	if handler.closed != 1 {
		t.Errorf("OnSessionClosed called %d times, want 1", handler.closed)
	}

	if err := s.SendLogout("again"); !errors.Is(err, ErrNotLoggedOn) {
		t.Errorf("SendLogout after close = %v, want ErrNotLoggedOn", err)
	}
}

func TestSession_LogoutDuringLogon(t *testing.T) {
	s, _, _ := newTestSession()
	s.StartLogon()

	go s.OnMessage(inbound(fix.MsgTypeLogout, 1).Add(fix.TagText, "bad credentials"), time.Now())

	err := s.AwaitLogon(context.Background(), time.Second)
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("AwaitLogon = %v, want ErrSessionClosed", err)
	}
}

func TestSession_SnapshotDelegated(t *testing.T) {
	s, _, handler := newTestSession()
	logOn(t, s)

	s.OnMessage(inbound(fix.MsgTypeMarketDataSnapshot, 2).Add(fix.TagSymbol, "EUR/USD"), time.Now())
	s.OnMessage(inbound("ZZ", 3), time.Now())

	if handler.snapshots != 1 {
		t.Errorf("snapshots = %d, want 1", handler.snapshots)
	}
	if s.State() != StateLoggedOn {
		t.Errorf("unknown message changed state to %v", s.State())
	}
}

func TestSession_Close(t *testing.T) {
	s, _, handler := newTestSession()
	logOn(t, s)
	s.SendMarketDataRequest("EUR/USD", SnapshotPlusUpdates)

	s.Close()
	s.Close()

	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if handler.closed != 0 {
		t.Errorf("OnSessionClosed called %d times on local close, want 0", handler.closed)
	}
	if s.Subscriptions().Len() != 0 {
		t.Errorf("Subscriptions().Len() = %d, want 0", s.Subscriptions().Len())
	}
}

func TestSecurityType(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"EUR/USD", "FOR"},
		{"gbp/jpy", "FOR"},
		{"AUDNZD", "FOR"},
		{"ES", "FUT"},
		{"CL-DEC", "FUT"},
	}
	for _, tt := range tests {
		if got := SecurityType(tt.symbol); got != tt.want {
			t.Errorf("SecurityType(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateLoggedOn.String() != "logged_on" {
		t.Errorf("StateLoggedOn.String() = %q", StateLoggedOn.String())
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
