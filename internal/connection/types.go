package connection

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/rickgao/quotefeed/internal/fix"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrTimeout       = errors.New("operation timeout")
	ErrAlreadyClosed = errors.New("already closed")
)

// InboundMessage wraps a decoded message with its receive timestamp.
type InboundMessage struct {
	Msg        *fix.Message
	ReceivedAt time.Time // Local timestamp when the frame completed
}

// ClientConfig configures a TCP client.
type ClientConfig struct {
	Host               string
	Port               int
	TLS                bool          // Wrap the socket in TLS
	ServerName         string        // TLS server name (defaults to Host)
	InsecureSkipVerify bool          // Skip TLS certificate verification
	DialTimeout        time.Duration // Connect timeout
	ReadTimeout        time.Duration // Read deadline per read call; bounds shutdown latency
	WriteTimeout       time.Duration // Write deadline for sends
	BufferSize         int           // Message channel buffer size
	ReadBufferSize     int           // Bytes per socket read
}

// Address returns host:port.
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:    10 * time.Second,
		ReadTimeout:    1 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1024,
		ReadBufferSize: 4096,
	}
}
