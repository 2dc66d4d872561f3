package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/connection"
	"github.com/rickgao/quotefeed/internal/market"
	"github.com/rickgao/quotefeed/internal/marketdata"
	"github.com/rickgao/quotefeed/internal/router"
	"github.com/rickgao/quotefeed/internal/session"
	"github.com/rickgao/quotefeed/internal/writer"
)

// DrainTimeout bounds how long Run waits for queued events and ticks after
// the session ends.
const DrainTimeout = 5 * time.Second

// ErrConnectionLost is returned when the transport ends while the session
// was still logged on.
var ErrConnectionLost = errors.New("connection lost")

// Options carries the dependencies New does not build from config.
type Options struct {
	// Publishers receive every emitted event, in order.
	Publishers []router.Publisher

	// DB enables tick persistence when non-nil.
	DB *pgxpool.Pool

	// Conn overrides the transport built from config.
	Conn connection.Client

	Logger *slog.Logger
}

// Client runs one quote session.
type Client struct {
	cfg    *config.Config
	runID  uuid.UUID
	logger *slog.Logger

	conn     connection.Client
	session  *session.Session
	store    *marketdata.Store
	pipeline *marketdata.Pipeline
	monitor  *marketdata.Monitor
	registry *market.Registry
	router   *router.Router
	writer   *writer.TickWriter
}

// New builds a client from a defaulted, validated config.
func New(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("feed: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := uuid.New()
	logger = logger.With("run_id", runID.String())

	c := &Client{
		cfg:    cfg,
		runID:  runID,
		logger: logger.With("component", "feed"),
	}

	c.conn = opts.Conn
	if c.conn == nil {
		c.conn = connection.NewClient(clientConfig(cfg.Connection), logger)
	}

	c.router = router.New(router.Config{
		InitialCapacity: router.DefaultConfig().InitialCapacity,
		PublishTimeout:  cfg.Publish.PublishTimeout,
	}, opts.Publishers, logger)

	c.registry = market.NewRegistry(cfg.Instruments, logger)
	c.store = marketdata.NewStore(cfg.MarketData.HistoryLimit)

	var recorder marketdata.TickRecorder
	if opts.DB != nil {
		c.writer = writer.NewTickWriter(writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
		}, runID, opts.DB, logger)
		recorder = c.writer
	}

	c.pipeline = marketdata.NewPipeline(marketdata.Config{
		GroupMode:    marketdata.GroupMode(cfg.MarketData.GroupMode),
		HistoryLimit: cfg.MarketData.HistoryLimit,
	}, c.store, c.router, c.registry, recorder, logger)

	c.monitor = marketdata.NewMonitor(marketdata.MonitorConfig{
		Interval:  cfg.MarketData.StaleInterval,
		Threshold: cfg.MarketData.StaleThreshold,
		LogEvery:  cfg.MarketData.StaleLogEvery,
	}, c.store, c.registry.Symbols(), c.router, logger)

	c.session = session.New(sessionConfig(cfg.Session), c.conn, c.pipeline, logger)

	return c, nil
}

// RunID identifies this process's ticks and logs.
func (c *Client) RunID() uuid.UUID { return c.runID }

// State returns the session state.
func (c *Client) State() session.State { return c.session.State() }

// Summary returns per-instrument subscription results.
func (c *Client) Summary() market.Summary { return c.registry.Summary() }

// Registry returns the instrument registry.
func (c *Client) Registry() *market.Registry { return c.registry }

// Store returns the price history store.
func (c *Client) Store() *marketdata.Store { return c.store }

// Run connects, logs on, subscribes and streams until ctx is cancelled, the
// server ends the session, or the transport fails.
func (c *Client) Run(ctx context.Context) error {
	c.router.Start(ctx)
	if c.writer != nil {
		if err := c.writer.Start(ctx); err != nil {
			return fmt.Errorf("start tick writer: %w", err)
		}
	}
	defer c.drain()

	c.logger.Info("connecting", "addr", c.cfg.Connection.Host, "port", c.cfg.Connection.Port)
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// Activities outlive ctx so the logout exchange can complete.
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	recvDone := make(chan struct{})
	g.Go(func() error {
		defer close(recvDone)
		return c.receiveLoop(gctx)
	})

	if err := c.logon(ctx); err != nil {
		c.session.Close()
		c.conn.Close()
		stop()
		g.Wait()
		return err
	}

	g.Go(func() error { return c.heartbeatLoop(gctx) })
	g.Go(func() error { return c.subscribeAll(gctx) })
	g.Go(func() error { return c.summaryAfter(gctx, c.cfg.Subscription.SummaryDelay) })
	g.Go(func() error { return c.watchChanges(gctx) })
	c.monitor.Start(gctx)

	select {
	case <-ctx.Done():
		c.logger.Info("shutdown requested")
	case <-c.session.Done():
		c.logger.Info("session closed by server")
	case <-recvDone:
		c.logger.Warn("receive loop ended")
	case <-gctx.Done():
	}

	c.shutdown()
	stop()

	err := g.Wait()
	c.registry.LogSummary()
	return err
}

func (c *Client) logon(ctx context.Context) error {
	if err := c.session.StartLogon(); err != nil {
		return fmt.Errorf("logon: %w", err)
	}
	if err := c.session.AwaitLogon(ctx, c.cfg.Session.LogonTimeout); err != nil {
		return err
	}
	return nil
}

// receiveLoop hands every inbound message to the session in arrival order.
func (c *Client) receiveLoop(ctx context.Context) error {
	msgs := c.conn.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-msgs:
			if !ok {
				return c.transportEnded()
			}
			c.session.OnMessage(in.Msg, in.ReceivedAt)
		}
	}
}

func (c *Client) transportEnded() error {
	var readErr error
	select {
	case readErr = <-c.conn.Errors():
	default:
	}

	switch c.session.State() {
	case session.StateLoggedOn, session.StateLoggingOn:
		if readErr != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, readErr)
		}
		return ErrConnectionLost
	default:
		return nil
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	interval := c.session.HeartbeatInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.session.Done():
			return nil
		case <-ticker.C:
			if c.session.State() != session.StateLoggedOn {
				return nil
			}
			if err := c.session.SendHeartbeat(""); err != nil {
				c.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// subscribeAll sends one request per instrument, spaced to avoid flooding
// the server.
func (c *Client) subscribeAll(ctx context.Context) error {
	kind := session.ParseSubscriptionKind(c.cfg.Subscription.Kind)
	spacing := c.cfg.Subscription.RequestSpacing

	for i, symbol := range c.registry.Symbols() {
		if i > 0 && spacing > 0 {
			timer := time.NewTimer(spacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		if c.session.State() != session.StateLoggedOn {
			return nil
		}
		if _, err := c.session.SendMarketDataRequest(symbol, kind); err != nil {
			c.logger.Error("subscribe failed", "symbol", symbol, "error", err)
		}
	}

	c.logger.Info("subscriptions sent", "count", len(c.registry.Symbols()), "kind", kind.String())
	return nil
}

func (c *Client) summaryAfter(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		c.registry.LogSummary()
	}
	return nil
}

func (c *Client) watchChanges(ctx context.Context) error {
	changes := c.registry.SubscribeChanges()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch := <-changes:
			c.logger.Debug("instrument status changed",
				"symbol", ch.Symbol,
				"from", ch.OldStatus,
				"to", ch.NewStatus,
			)
		}
	}
}

// shutdown stops staleness checks, logs out if still logged on and waits
// briefly for the server's reply, then closes the session and transport.
func (c *Client) shutdown() {
	c.monitor.Stop()

	if c.session.State() == session.StateLoggedOn {
		if err := c.session.SendLogout(""); err == nil {
			timer := time.NewTimer(c.cfg.Session.LogoutWait)
			select {
			case <-timer.C:
			case <-c.session.Done():
			}
			timer.Stop()
		}
	}

	c.session.Close()
	// Close is idempotent and returns nil if the transport already went away.
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("close connection", "error", err)
	}
}

// drain flushes queued events and ticks.
func (c *Client) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	if err := c.router.Stop(ctx); err != nil {
		c.logger.Warn("event router drain incomplete", "error", err)
	}
	if c.writer != nil {
		if err := c.writer.Stop(ctx); err != nil {
			c.logger.Warn("tick writer drain incomplete", "error", err)
		}
	}
}

func clientConfig(cfg config.ConnectionConfig) connection.ClientConfig {
	cc := connection.DefaultClientConfig()
	cc.Host = cfg.Host
	cc.Port = cfg.Port
	cc.TLS = cfg.TLS
	cc.ServerName = cfg.ServerName
	cc.InsecureSkipVerify = cfg.InsecureSkipVerify
	if cfg.DialTimeout > 0 {
		cc.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		cc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		cc.WriteTimeout = cfg.WriteTimeout
	}
	return cc
}

func sessionConfig(cfg config.SessionConfig) session.Config {
	return session.Config{
		BeginString:       cfg.BeginString,
		SenderCompID:      cfg.SenderCompID,
		TargetCompID:      cfg.TargetCompID,
		SenderSubID:       cfg.SenderSubID,
		DeliverToCompID:   cfg.DeliverToCompID,
		Username:          cfg.Username,
		Password:          cfg.Password,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ResetSeqNum:       cfg.ResetSeqNumFlag(),
	}
}
