package feed

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/publish"
	"github.com/rickgao/quotefeed/internal/router"
	"github.com/rickgao/quotefeed/internal/session"
)

// acceptor is a minimal in-process FIX server.
type acceptor struct {
	t  *testing.T
	ln net.Listener

	// Behaviour
	silent         bool              // never answer logon
	dropAfterLogon bool              // close the socket after the logon reply
	logoutAfter    int               // send Logout after this many requests
	reject         map[string]string // symbol -> reject text

	mu       sync.Mutex
	received []string
	seq      int
}

func newAcceptor(t *testing.T) *acceptor {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := &acceptor{t: t, ln: ln, reject: map[string]string{}}
	t.Cleanup(func() { ln.Close() })
	return a
}

func (a *acceptor) start() {
	go func() {
		conn, err := a.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		a.serve(conn)
	}()
}

func (a *acceptor) addr() (string, int) {
	tcp := a.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (a *acceptor) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.received...)
}

func (a *acceptor) send(conn net.Conn, msgType string, body func(m *fix.Message)) {
	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	m := fix.NewMessage(fix.BeginStringFIX44, msgType)
	m.Add(fix.TagSenderCompID, "SERVER")
	m.Add(fix.TagTargetCompID, "CLIENT")
	m.AddInt(fix.TagMsgSeqNum, seq)
	m.AddTime(fix.TagSendingTime, time.Now())
	if body != nil {
		body(m)
	}
	conn.Write(m.Build())
}

func (a *acceptor) serve(conn net.Conn) {
	parser := fix.NewParser()
	buf := make([]byte, 4096)
	requests := 0

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			parser.Append(buf[:n])
			for {
				msg, perr := parser.Next()
				if perr != nil {
					continue
				}
				if msg == nil {
					break
				}

				a.mu.Lock()
				a.received = append(a.received, msg.MsgType())
				a.mu.Unlock()

				switch msg.MsgType() {
				case fix.MsgTypeLogon:
					if a.silent {
						continue
					}
					a.send(conn, fix.MsgTypeLogon, func(m *fix.Message) {
						m.Add(fix.TagEncryptMethod, "0")
						m.AddInt(fix.TagHeartBtInt, 1)
					})
					if a.dropAfterLogon {
						return
					}

				case fix.MsgTypeMarketDataRequest:
					requests++
					a.answerRequest(conn, msg)
					if a.logoutAfter > 0 && requests == a.logoutAfter {
						a.send(conn, fix.MsgTypeLogout, func(m *fix.Message) {
							m.Add(fix.TagText, "Maintenance")
						})
					}

				case fix.MsgTypeLogout:
					if a.logoutAfter == 0 {
						a.send(conn, fix.MsgTypeLogout, nil)
						return
					}
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *acceptor) answerRequest(conn net.Conn, req *fix.Message) {
	symbol := req.GetString(fix.TagSymbol)
	reqID := req.GetString(fix.TagMDReqID)

	if text, ok := a.reject[symbol]; ok {
		a.send(conn, fix.MsgTypeMarketDataReject, func(m *fix.Message) {
			m.Add(fix.TagMDReqID, reqID)
			m.Add(fix.TagText, text)
		})
		return
	}

	a.send(conn, fix.MsgTypeMarketDataSnapshot, func(m *fix.Message) {
		m.Add(fix.TagMDReqID, reqID)
		m.Add(fix.TagSymbol, symbol)
		m.AddInt(fix.TagNoMDEntries, 2)
		m.Add(fix.TagMDEntryType, fix.EntryTypeBid)
		m.Add(fix.TagMDEntryPx, "1.10000")
		m.Add(fix.TagMDEntrySize, "1000000")
		m.Add(fix.TagMDEntryType, fix.EntryTypeOffer)
		m.Add(fix.TagMDEntryPx, "1.10015")
		m.Add(fix.TagMDEntrySize, "500000")
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(host string, port int, instruments ...string) *config.Config {
	cfg := config.Default()
	cfg.Session.SenderCompID = "CLIENT"
	cfg.Session.TargetCompID = "SERVER"
	cfg.Session.LogonTimeout = 2 * time.Second
	cfg.Session.LogoutWait = 200 * time.Millisecond
	cfg.Connection.Host = host
	cfg.Connection.Port = port
	cfg.Connection.ReadTimeout = 50 * time.Millisecond
	cfg.Instruments = instruments
	cfg.Subscription.RequestSpacing = 10 * time.Millisecond
	cfg.Subscription.SummaryDelay = 50 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config) (*Client, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	c, err := New(cfg, Options{Publishers: []router.Publisher{publish.NewStdout(out)}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c, out
}

func runAsync(c *Client, ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	return errCh
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_RunStreamsQuotes(t *testing.T) {
	a := newAcceptor(t)
	a.reject["BAD/PAIR"] = "InvalidCurrencyPair"
	a.start()

	host, port := a.addr()
	c, out := newTestClient(t, testConfig(host, port, "EUR/USD", "BAD/PAIR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := runAsync(c, ctx)

	waitFor(t, "subscription results", func() bool {
		s := c.Summary()
		return s.Active == 1 && s.Rejected == 1
	})
	cancel()

	if err := waitResult(t, errCh); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	got := out.String()
	if !strings.Contains(got, `"ticker":"EUR/USD"`) || !strings.Contains(got, `"midprice":1.100075`) {
		t.Errorf("output missing EUR/USD price event:\n%s", got)
	}
	want := `{"ticker":"BAD/PAIR","bid":null,"ask":null,"midprice":null,"spread":null,"err":"InvalidCurrencyPair"}`
	if !strings.Contains(got, want) {
		t.Errorf("output missing reject event %s:\n%s", want, got)
	}

	types := a.types()
	if len(types) < 4 || types[0] != fix.MsgTypeLogon {
		t.Fatalf("server received %v", types)
	}
	if types[len(types)-1] != fix.MsgTypeLogout {
		t.Errorf("last message = %q, want Logout", types[len(types)-1])
	}

	// The acceptor answers our Logout, which is reported like any other.
	if n := strings.Count(got, `"err":"LOGOUT"`); n != 1 {
		t.Errorf("LOGOUT events = %d, want 1:\n%s", n, got)
	}

	if c.State() != session.StateClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}
	if hist, ok := c.Store().Snapshot("EUR/USD"); !ok || len(hist.Ticks) != 1 {
		t.Errorf("EUR/USD history = %+v, %v", hist, ok)
	}
}

func TestClient_ServerLogout(t *testing.T) {
	a := newAcceptor(t)
	a.logoutAfter = 1
	a.start()

	host, port := a.addr()
	c, out := newTestClient(t, testConfig(host, port, "EUR/USD"))

	errCh := runAsync(c, context.Background())
	if err := waitResult(t, errCh); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}

	if !strings.Contains(out.String(), `"err":"LOGOUT"`) {
		t.Errorf("output missing LOGOUT event:\n%s", out.String())
	}
	if c.State() != session.StateClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}

	waitFor(t, "logout acknowledgement", func() bool {
		types := a.types()
		return len(types) > 0 && types[len(types)-1] == fix.MsgTypeLogout
	})
}

func TestClient_LogonTimeout(t *testing.T) {
	a := newAcceptor(t)
	a.silent = true
	a.start()

	host, port := a.addr()
	cfg := testConfig(host, port, "EUR/USD")
	cfg.Session.LogonTimeout = 100 * time.Millisecond
	c, _ := newTestClient(t, cfg)

	err := waitResult(t, runAsync(c, context.Background()))
	if !errors.Is(err, session.ErrLogonTimeout) {
		t.Errorf("Run() error = %v, want ErrLogonTimeout", err)
	}

	for _, mt := range a.types() {
		if mt == fix.MsgTypeMarketDataRequest {
			t.Error("market data request sent without logon")
		}
	}
}

func TestClient_ConnectionLost(t *testing.T) {
	a := newAcceptor(t)
	a.dropAfterLogon = true
	a.start()

	host, port := a.addr()
	cfg := testConfig(host, port, "EUR/USD")
	cfg.Subscription.RequestSpacing = time.Second
	c, _ := newTestClient(t, cfg)

	err := waitResult(t, runAsync(c, context.Background()))
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Run() error = %v, want ErrConnectionLost", err)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c, _ := newTestClient(t, testConfig("127.0.0.1", port, "EUR/USD"))

	err = waitResult(t, runAsync(c, context.Background()))
	if err == nil || !strings.Contains(err.Error(), "connect") {
		t.Errorf("Run() error = %v, want connect error", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("New(nil) expected error")
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Session.SenderSubID = "desk"
	no := false
	cfg.Session.ResetSeqNum = &no

	sc := sessionConfig(cfg.Session)
	if sc.BeginString != fix.BeginStringFIX44 || sc.SenderSubID != "desk" || sc.ResetSeqNum {
		t.Errorf("sessionConfig() = %+v", sc)
	}
}
