package gsioc

import (
	"context"
	"fmt"
)

// ExecuteImmediate sends an immediate command to the connected device and
// collects its response.
//
// The device streams its answer in chunks; after every chunk the master
// waits one poll interval, reads what arrived and acknowledges it with ACK.
// The first poll that finds nothing ends the exchange. A response with no
// bytes at all is valid.
//
// The exchange is bounded by the configured immediate timeout. A device
// still streaming when it expires yields ErrResponseTimeout.
//
// cmd must be a 7-bit character: bytes with the high bit set are address
// frames on this bus.
func (c *Connection) ExecuteImmediate(ctx context.Context, cmd byte) (*Response, error) {
	if !isSevenBit(cmd) {
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidCommand, cmd)
	}

	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	start := c.clock.Now()

	if err := c.writeByte(cmd); err != nil {
		return nil, fmt.Errorf("gsioc: write immediate command %q: %w", cmd, err)
	}

	var data []byte
	for {
		if err := c.clock.Sleep(ctx, c.cfg.PollInterval()); err != nil {
			return nil, err
		}

		chunk, err := c.readIfAvailable()
		if err != nil {
			return nil, err
		}

		if len(chunk) == 0 {
			break
		}

		data = append(data, chunk...)

		if err := c.writeByte(ACK); err != nil {
			return nil, fmt.Errorf("gsioc: write ACK: %w", err)
		}
		c.metrics.incAckSentCount()

		if elapsed := c.clock.Now().Sub(start); elapsed >= c.cfg.ImmediateTimeout() {
			c.metrics.incResponseTimeoutCount()
			c.logger.Warn("gsioc: immediate response exceeded timeout",
				"command", string(rune(cmd)),
				"received", len(data),
				"elapsed", elapsed,
				"timeout", c.cfg.ImmediateTimeout(),
			)

			return nil, fmt.Errorf("%w: command %q still streaming after %d bytes",
				ErrResponseTimeout, cmd, len(data))
		}
	}

	resp := newResponse(data)
	c.metrics.incImmediateCount()

	c.logger.Debug("gsioc: immediate command completed",
		"command", string(rune(cmd)),
		"bytes", resp.Len(),
	)

	return resp, nil
}

// ResetDevice connects to addr and sends the master reset command ('$').
// It returns the decoded response text, or ErrDeviceNotFound if the device
// did not acknowledge its address.
func (c *Connection) ResetDevice(ctx context.Context, addr Address) (string, error) {
	return c.queryText(ctx, addr, ResetCommand)
}

// ModuleInfo connects to addr and returns its module identification string
// (command '%'), or ErrDeviceNotFound if the device did not acknowledge its
// address.
func (c *Connection) ModuleInfo(ctx context.Context, addr Address) (string, error) {
	return c.queryText(ctx, addr, ModuleInfoCommand)
}

func (c *Connection) queryText(ctx context.Context, addr Address, cmd byte) (string, error) {
	ok, err := c.Connect(ctx, addr)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: address %d", ErrDeviceNotFound, addr.Masked())
	}

	resp, err := c.ExecuteImmediate(ctx, cmd)
	if err != nil {
		return "", err
	}

	return resp.Text, nil
}
