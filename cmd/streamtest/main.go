// streamtest logs on to a FIX quote server, subscribes to the configured
// instruments and prints every decoded message to the console.
// Usage: go run ./cmd/streamtest --config configs/quotefeed.example.yaml -instruments EUR/USD,USD/JPY
//
// Credentials are usually supplied through the environment, for example
// FIX_USERNAME and FIX_PASSWORD referenced from the config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/connection"
	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/marketdata"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/session"
)

func main() {
	configPath := flag.String("config", "configs/quotefeed.example.yaml", "path to config file")
	instruments := flag.String("instruments", "", "comma separated instruments (overrides config)")
	verbose := flag.Bool("verbose", false, "print raw FIX for every message")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *instruments != "" {
		cfg.SetInstruments(*instruments)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connCfg := connection.DefaultClientConfig()
	connCfg.Host = cfg.Connection.Host
	connCfg.Port = cfg.Connection.Port
	connCfg.TLS = cfg.Connection.TLS
	connCfg.ServerName = cfg.Connection.ServerName
	connCfg.InsecureSkipVerify = cfg.Connection.InsecureSkipVerify
	conn := connection.NewClient(connCfg, logger)

	handler := &printer{mode: marketdata.GroupMode(cfg.MarketData.GroupMode), logger: logger}
	sess := session.New(session.Config{
		BeginString:       cfg.Session.BeginString,
		SenderCompID:      cfg.Session.SenderCompID,
		TargetCompID:      cfg.Session.TargetCompID,
		SenderSubID:       cfg.Session.SenderSubID,
		DeliverToCompID:   cfg.Session.DeliverToCompID,
		Username:          cfg.Session.Username,
		Password:          cfg.Session.Password,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ResetSeqNum:       cfg.Session.ResetSeqNumFlag(),
	}, conn, handler, logger)

	logger.Info("connecting", "addr", connCfg.Address(), "tls", connCfg.TLS)
	if err := conn.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Print and dispatch every inbound message
	go func() {
		for in := range conn.Messages() {
			if *verbose {
				fmt.Printf("[%s] %s\n", fix.MsgTypeName(in.Msg.MsgType()), in.Msg.String())
			} else {
				fmt.Printf("[%s] seq=%s\n", fix.MsgTypeName(in.Msg.MsgType()), in.Msg.GetString(fix.TagMsgSeqNum))
			}
			sess.OnMessage(in.Msg, in.ReceivedAt)
		}
		logger.Info("connection closed")
		cancel()
	}()

	if err := sess.StartLogon(); err != nil {
		logger.Error("failed to send logon", "error", err)
		os.Exit(1)
	}
	if err := sess.AwaitLogon(ctx, cfg.Session.LogonTimeout); err != nil {
		logger.Error("logon failed", "error", err)
		os.Exit(1)
	}

	kind := session.ParseSubscriptionKind(cfg.Subscription.Kind)
	for i, symbol := range cfg.Instruments {
		if i > 0 {
			time.Sleep(cfg.Subscription.RequestSpacing)
		}
		if _, err := sess.SendMarketDataRequest(symbol, kind); err != nil {
			logger.Error("subscribe failed", "symbol", symbol, "error", err)
		}
	}

	// Heartbeats and stats
	go func() {
		hb := time.NewTicker(sess.HeartbeatInterval())
		defer hb.Stop()
		stats := time.NewTicker(10 * time.Second)
		defer stats.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.C:
				sess.SendHeartbeat("")
			case <-stats.C:
				logger.Info("stats",
					"state", sess.State().String(),
					"last_seq", sess.Sequencer().LastSeqNum(),
					"pending_requests", sess.Subscriptions().Len(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop",
		"instruments", strings.Join(cfg.Instruments, ","),
	)

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case <-sess.Done():
	}

	logger.Info("shutting down...")
	if err := sess.SendLogout(""); err == nil {
		select {
		case <-sess.Done():
		case <-time.After(cfg.Session.LogoutWait):
		}
	}
	sess.Close()

	logger.Info("shutdown complete")
}

// printer prints decoded market data instead of building events.
type printer struct {
	mode   marketdata.GroupMode
	logger *slog.Logger
}

func (p *printer) OnSnapshot(msg *fix.Message, receivedAt time.Time) {
	entries, err := marketdata.Extract(p.mode, msg.Fields(), p.logger)
	if err != nil {
		fmt.Printf("[SNAPSHOT] symbol=%s group error: %v\n", msg.GetString(fix.TagSymbol), err)
	}
	for _, e := range entries {
		side := "bid"
		if e.Type == model.EntryOffer {
			side = "ask"
		}
		size := "-"
		if e.HasSize {
			size = e.Size.String()
		}
		fmt.Printf("[SNAPSHOT] symbol=%s %s=%s size=%s at=%s\n",
			msg.GetString(fix.TagSymbol), side, e.Price, size, receivedAt.Format(time.RFC3339Nano))
	}
}

func (p *printer) OnMarketDataReject(symbol, reason string) {
	fmt.Printf("[REJECT] symbol=%s reason=%s\n", symbol, reason)
}

func (p *printer) OnSessionClosed() {
	fmt.Println("[LOGOUT] session closed by server")
}
