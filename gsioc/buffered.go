package gsioc

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExecuteBuffered sends a buffered command with optional parameters to the
// connected device.
//
// The exchange is fully interlocked: LF, the command byte, every parameter
// character and the closing CR are written one at a time, and each echo is
// drained before the next byte goes out. No response is collected; success
// means no transport error occurred.
//
// cmd and params must be 7-bit characters. A parameter string made only of
// white space is not sent.
func (c *Connection) ExecuteBuffered(ctx context.Context, cmd byte, params string) error {
	if !isSevenBit(cmd) {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidCommand, cmd)
	}

	for i := 0; i < len(params); i++ {
		if !isSevenBit(params[i]) {
			return fmt.Errorf("%w: byte 0x%02X at offset %d", ErrInvalidParameter, params[i], i)
		}
	}

	if err := c.ensureOpen(); err != nil {
		return err
	}

	if err := c.sendBufferedByte(ctx, LF, c.cfg.BufferedLineFeedDelay()); err != nil {
		return err
	}

	if err := c.sendBufferedByte(ctx, cmd, c.cfg.BufferedCharDelay()); err != nil {
		return err
	}

	if strings.TrimSpace(params) != "" {
		for i := 0; i < len(params); i++ {
			if err := c.sendBufferedByte(ctx, params[i], c.cfg.BufferedCharDelay()); err != nil {
				return err
			}
		}
	}

	if err := c.sendBufferedByte(ctx, CR, c.cfg.BufferedCharDelay()); err != nil {
		return err
	}

	if err := c.clock.Sleep(ctx, c.cfg.BufferedSettle()); err != nil {
		return err
	}

	c.metrics.incBufferedCount()

	c.logger.Debug("gsioc: buffered command completed",
		"command", string(rune(cmd)),
		"params", params,
	)

	return nil
}

// sendBufferedByte writes b, waits for the device to echo it and drains the
// echo. drainDelay is waited only when something was drained.
func (c *Connection) sendBufferedByte(ctx context.Context, b byte, drainDelay time.Duration) error {
	if err := c.writeByte(b); err != nil {
		return fmt.Errorf("gsioc: write buffered byte 0x%02X: %w", b, err)
	}

	if err := c.clock.Sleep(ctx, c.cfg.BufferedCharDelay()); err != nil {
		return err
	}

	echo, err := c.readIfAvailable()
	if err != nil {
		return err
	}

	if len(echo) == 0 {
		return nil
	}

	return c.clock.Sleep(ctx, drainDelay)
}
