package gsioc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/go-gsioc/logger"
)

// Sentinel errors for the GSIOC engine.
var (
	ErrTransportNil  = errors.New("gsioc: transport is nil")
	ErrConnConfigNil = errors.New("gsioc: connection config is nil")

	ErrInvalidCommand   = errors.New("gsioc: invalid command byte")
	ErrInvalidParameter = errors.New("gsioc: invalid buffered command parameter")
	ErrInvalidScanStart = errors.New("gsioc: scan start position out of range [0, 64]")

	// ErrResponseTimeout is returned when a device keeps streaming an
	// immediate command response past the configured immediate timeout.
	ErrResponseTimeout = errors.New("gsioc: device stopped responding")

	// ErrDeviceNotFound is returned by operations that address a device
	// when the device did not acknowledge its address frame.
	ErrDeviceNotFound = errors.New("gsioc: device not found")

	ErrBusClosed    = errors.New("gsioc: bus closed")
	ErrQueueTimeout = errors.New("gsioc: request queue timeout")
)

// Connection is the GSIOC protocol engine bound to one Transport.
//
// It owns the transport exclusively: Open and the implicit open performed by
// every operation acquire it, Close releases it. Connection is NOT
// goroutine-safe; use a Bus to share one bus between callers.
type Connection struct {
	transport Transport
	cfg       *ConnectionConfig
	clock     Clock
	logger    logger.Logger

	metrics ConnectionMetrics
}

// NewConnection creates a Connection driving t with the given configuration.
// The transport is not opened until Open or the first operation.
func NewConnection(t Transport, cfg *ConnectionConfig) (*Connection, error) {
	if t == nil {
		return nil, ErrTransportNil
	}
	if cfg == nil {
		return nil, ErrConnConfigNil
	}

	return &Connection{
		transport: t,
		cfg:       cfg,
		clock:     cfg.clock,
		logger:    cfg.logger,
	}, nil
}

// Open opens the transport. Opening an open connection is a no-op.
func (c *Connection) Open() error {
	if c.transport.IsOpen() {
		return nil
	}

	if err := c.transport.Open(); err != nil {
		return fmt.Errorf("gsioc: open transport: %w", err)
	}

	c.logger.Info("gsioc: transport opened")

	return nil
}

// Close closes the transport.
func (c *Connection) Close() error {
	if !c.transport.IsOpen() {
		return nil
	}

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("gsioc: close transport: %w", err)
	}

	c.logger.Info("gsioc: transport closed")

	return nil
}

// IsOpen reports whether the transport is open.
func (c *Connection) IsOpen() bool {
	return c.transport.IsOpen()
}

// SetRTS sets the RTS line of the transport.
func (c *Connection) SetRTS(enabled bool) error {
	return c.transport.SetRTS(enabled)
}

// SetDTR sets the DTR line of the transport.
func (c *Connection) SetDTR(enabled bool) error {
	return c.transport.SetDTR(enabled)
}

// Config returns the connection configuration.
func (c *Connection) Config() *ConnectionConfig {
	return c.cfg
}

// GetLogger returns the logger associated with the connection.
func (c *Connection) GetLogger() logger.Logger {
	return c.logger
}

// GetMetrics returns the metrics associated with the connection.
func (c *Connection) GetMetrics() *ConnectionMetrics {
	return &c.metrics
}

// Connect selects the device at addr.
//
// It writes the address frame and waits for the device to echo it, either
// directly or after a query (0xFE) and a repeated frame. It returns false
// with a nil error when no device acknowledged the address. The bus
// deselects after each exchange, so Connect must precede every command.
func (c *Connection) Connect(ctx context.Context, addr Address) (bool, error) {
	if err := c.ensureOpen(); err != nil {
		return false, err
	}

	c.metrics.incConnectAttemptCount()

	frame := addr.WireByte()
	reply, err := c.sendAddressFrame(ctx, frame)
	if err != nil {
		return false, err
	}

	if len(reply) == 0 {
		c.logger.Debug("gsioc: no reply to address frame", "address", addr.Masked())
		return false, nil
	}

	switch reply[0] {
	case QueryByte:
		// the device asks for the frame once more before it answers
		reply, err = c.sendAddressFrame(ctx, frame)
		if err != nil {
			return false, err
		}

		if len(reply) == 0 || reply[0] != frame {
			c.logger.Debug("gsioc: address re-confirmation failed",
				"address", addr.Masked(),
				"reply", reply,
			)

			return false, nil
		}

	case frame:
		// direct echo

	default:
		c.logger.Debug("gsioc: unexpected reply to address frame",
			"address", addr.Masked(),
			"reply", fmt.Sprintf("0x%02X", reply[0]),
		)

		return false, nil
	}

	c.metrics.incConnectSuccessCount()
	c.logger.Debug("gsioc: device connected", "address", addr.Masked())

	return true, nil
}

// DisconnectAll deselects every device on the bus and waits for the bus to
// settle.
func (c *Connection) DisconnectAll(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}

	if err := c.writeByte(DisconnectByte); err != nil {
		return fmt.Errorf("gsioc: write disconnect: %w", err)
	}

	return c.clock.Sleep(ctx, c.cfg.DisconnectSettle())
}

func (c *Connection) sendAddressFrame(ctx context.Context, frame byte) ([]byte, error) {
	if err := c.writeByte(frame); err != nil {
		return nil, fmt.Errorf("gsioc: write address frame: %w", err)
	}

	if err := c.clock.Sleep(ctx, c.cfg.ConnectSettle()); err != nil {
		return nil, err
	}

	return c.readIfAvailable()
}

// --- Low-level I/O helpers ---

func (c *Connection) ensureOpen() error {
	return c.Open()
}

// writeByte writes a single protocol byte.
func (c *Connection) writeByte(b byte) error {
	n, err := c.transport.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return io.ErrShortWrite
	}

	c.metrics.addBytesSentCount(1)

	return nil
}

// readIfAvailable returns every pending received byte, or nil if there is
// none.
func (c *Connection) readIfAvailable() ([]byte, error) {
	n, err := c.transport.BytesAvailable()
	if err != nil {
		return nil, fmt.Errorf("gsioc: query available bytes: %w", err)
	}
	if n <= 0 {
		return nil, nil
	}

	data, err := c.transport.ReadAvailable()
	if err != nil {
		return nil, fmt.Errorf("gsioc: read: %w", err)
	}

	c.metrics.addBytesRecvCount(len(data))

	return data, nil
}
