package bestin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Transport defaults.
const (
	defaultBaudRate          = 9600
	defaultDialTimeout       = 5 * time.Second
	defaultReadTimeout       = 20 * time.Millisecond
	defaultReconnectMaxDelay = 60 * time.Second
)

// serialAddressRe matches local serial device addresses. Anything with a
// host:port shape is treated as a serial-to-TCP converter instead.
var serialAddressRe = regexp.MustCompile(`^(/dev/tty(USB|AMA|S)\d+|COM\d+)$`)

// Transport is the byte-stream connection to the wallpad bus.
//
// Implementations own their reconnect policy: Send and Receive report
// errors while disconnected but also schedule reconnection attempts, so
// the engine can keep polling without managing connection state itself.
type Transport interface {
	// Connect establishes the initial connection.
	Connect(ctx context.Context) error

	// IsConnected reports whether the bus link is currently up.
	IsConnected() bool

	// Send writes a complete frame to the bus.
	Send(frame []byte) error

	// Receive returns up to max bytes currently available, or an empty
	// slice when the bus is idle for the poll window.
	Receive(max int) ([]byte, error)

	// Close tears the connection down permanently.
	Close() error
}

// TransportOptions configures a BusTransport.
type TransportOptions struct {
	// Address is either a serial device path ("/dev/ttyUSB0", "COM3") or
	// a TCP endpoint ("192.168.0.27:8899").
	Address string

	// BaudRate for serial connections. Default 9600 (8N1).
	BaudRate int

	// DialTimeout bounds TCP connection attempts. Default 5s.
	DialTimeout time.Duration

	// ReadTimeout is the per-Receive poll window. Default 20ms.
	ReadTimeout time.Duration

	// ReconnectMaxDelay caps the exponential reconnect backoff. Default 60s.
	ReconnectMaxDelay time.Duration

	// Logger for connection events. Optional.
	Logger Logger
}

// BusTransport connects to the wallpad bus over a serial port or a TCP
// serial converter, chosen from the address form. Lost connections are
// re-established lazily: each Send/Receive while down may trigger one
// reconnect attempt, spaced by exponential backoff capped at
// ReconnectMaxDelay.
type BusTransport struct {
	opts     TransportOptions
	isSerial bool
	logger   Logger

	mu          sync.Mutex
	conn        io.ReadWriteCloser
	netConn     net.Conn // set when the connection is TCP
	connected   bool
	closed      bool
	attempts    int
	nextAttempt time.Time
}

// NewBusTransport validates the address and creates an unconnected
// transport. Call Connect before use.
func NewBusTransport(opts TransportOptions) (*BusTransport, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	isSerial := serialAddressRe.MatchString(opts.Address)
	if !isSerial {
		if _, _, err := net.SplitHostPort(opts.Address); err != nil {
			return nil, fmt.Errorf("%w: %q is neither a serial device nor host:port", ErrInvalidAddress, opts.Address)
		}
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = defaultBaudRate
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &BusTransport{
		opts:     opts,
		isSerial: isSerial,
		logger:   logger,
	}, nil
}

// Connect establishes the initial bus connection.
//
// Returns:
//   - error: ErrConnectionFailed (wrapped) if the dial fails
func (t *BusTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrNotConnected
	}
	if t.connected {
		return nil
	}
	return t.dialLocked(ctx)
}

// dialLocked opens the serial port or TCP connection. Caller holds t.mu.
func (t *BusTransport) dialLocked(ctx context.Context) error {
	if t.isSerial {
		port, err := serial.Open(t.opts.Address, &serial.Mode{
			BaudRate: t.opts.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return t.dialFailedLocked(err)
		}
		if err := port.SetReadTimeout(t.opts.ReadTimeout); err != nil {
			port.Close() //nolint:errcheck // Best effort cleanup on error path
			return t.dialFailedLocked(err)
		}
		t.conn = port
		t.netConn = nil
	} else {
		dialer := net.Dialer{Timeout: t.opts.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", t.opts.Address)
		if err != nil {
			return t.dialFailedLocked(err)
		}
		t.conn = conn
		t.netConn = conn
	}

	t.connected = true
	t.attempts = 0
	t.logger.Info("bus connected", "address", t.opts.Address, "serial", t.isSerial)
	return nil
}

// dialFailedLocked records a failed attempt and schedules the next one.
func (t *BusTransport) dialFailedLocked(err error) error {
	t.attempts++
	delay := min(time.Duration(1<<uint(min(t.attempts, 16)))*time.Second, t.opts.ReconnectMaxDelay)
	t.nextAttempt = time.Now().Add(delay)
	t.logger.Warn("bus connection failed",
		"address", t.opts.Address,
		"attempt", t.attempts,
		"retry_in", delay.String(),
		"error", err)
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

// ensureConnectedLocked reconnects if the link is down and the backoff
// window has elapsed. Caller holds t.mu.
func (t *BusTransport) ensureConnectedLocked() error {
	if t.closed {
		return ErrNotConnected
	}
	if t.connected {
		return nil
	}
	if time.Now().Before(t.nextAttempt) {
		return ErrNotConnected
	}
	return t.dialLocked(context.Background())
}

// dropLocked tears down a broken connection and schedules a reconnect.
func (t *BusTransport) dropLocked(err error) {
	if t.conn != nil {
		t.conn.Close() //nolint:errcheck // Already broken
		t.conn = nil
		t.netConn = nil
	}
	t.connected = false
	t.attempts = 0
	t.nextAttempt = time.Now().Add(time.Second)
	t.logger.Warn("bus connection lost", "address", t.opts.Address, "error", err)
}

// IsConnected reports whether the bus link is currently up.
func (t *BusTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send writes a complete frame to the bus.
//
// Returns:
//   - error: ErrNotConnected while down, ErrSendFailed (wrapped) on a
//     write error; write errors drop the connection
func (t *BusTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnectedLocked(); err != nil {
		return err
	}
	if _, err := t.conn.Write(frame); err != nil {
		t.dropLocked(err)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Receive returns up to max bytes currently available on the bus.
//
// An idle bus yields an empty slice and nil error after the poll window.
// Read errors drop the connection and return ErrNotConnected on the
// following calls until the backoff allows a reconnect.
func (t *BusTransport) Receive(max int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnectedLocked(); err != nil {
		return nil, err
	}

	if t.netConn != nil {
		if err := t.netConn.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout)); err != nil {
			t.dropLocked(err)
			return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	}

	buf := make([]byte, max)
	n, err := t.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		t.dropLocked(err)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return buf[:n], nil
}

// Close tears the connection down permanently. Subsequent operations
// return ErrNotConnected.
func (t *BusTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.netConn = nil
	if err != nil {
		return fmt.Errorf("closing bus connection: %w", err)
	}
	return nil
}
