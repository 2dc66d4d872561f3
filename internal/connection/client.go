package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
	"github.com/rickgao/quotefeed/internal/metrics"
)

// Client represents a single connection to the quote server.
type Client interface {
	// Connect dials the server and starts the read loop.
	Connect(ctx context.Context) error

	// Close closes the socket and stops the read loop.
	Close() error

	// Send writes one encoded frame to the connection.
	Send(data []byte) error

	// Messages returns decoded inbound messages in arrival order. The channel
	// is closed when the read loop exits.
	Messages() <-chan InboundMessage

	// Errors returns the terminal read error, if any.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn net.Conn

	// Output channels
	messages chan InboundMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a new TCP client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan InboundMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the server.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	var conn net.Conn
	var err error
	if c.cfg.TLS {
		serverName := c.cfg.ServerName
		if serverName == "" {
			serverName = c.cfg.Host
		}
		td := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName:         serverName,
				InsecureSkipVerify: c.cfg.InsecureSkipVerify,
				MinVersion:         tls.VersionTLS12,
			},
		}
		conn, err = td.DialContext(ctx, "tcp", c.cfg.Address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address())
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Info("connected", "address", c.cfg.Address(), "tls", c.cfg.TLS)

	return nil
}

// Close closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal the read loop to stop
	close(c.done)

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// Send writes one frame to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ErrTimeout
		}
		return err
	}
	metrics.BytesSent.Add(float64(len(data)))
	return nil
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan InboundMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads bytes, frames them and forwards decoded messages.
func (c *client) readLoop() {
	defer close(c.messages)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	parser := fix.NewParser()
	buf := make([]byte, c.cfg.ReadBufferSize)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		n, err := c.conn.Read(buf)
		receivedAt := time.Now()

		if n > 0 {
			metrics.BytesReceived.Add(float64(n))
			parser.Append(buf[:n])
			if !c.drain(parser, receivedAt) {
				return
			}
		}

		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("server closed connection")
			}
			select {
			case c.errors <- err:
			default:
			}
			return
		}
	}
}

// drain forwards every complete frame in the parser. It returns false when
// the client is closing.
func (c *client) drain(parser *fix.Parser, receivedAt time.Time) bool {
	for {
		msg, err := parser.Next()
		if err != nil {
			metrics.DecodeErrors.Inc()
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if msg == nil {
			return true
		}

		select {
		case c.messages <- InboundMessage{Msg: msg, ReceivedAt: receivedAt}:
		case <-c.done:
			return false
		}
	}
}
