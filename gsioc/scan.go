package gsioc

import (
	"context"
	"fmt"
)

// scanLastPosition is the final scan position. Positions run through 64
// inclusive: position 64 aliases address 0 (64 & 0x3F == 0) and probes it a
// second time.
const scanLastPosition = 64

// ScanProgressFunc is called before each scan position is probed.
type ScanProgressFunc func(position int, addr Address)

// FindFirst probes scan positions from start through 64 and returns the
// address of the first device that acknowledges. The bus is disconnected
// before returning a found device. ok is false if no device answered.
func (c *Connection) FindFirst(ctx context.Context, start int, progress ScanProgressFunc) (Address, bool, error) {
	var (
		found Address
		ok    bool
	)

	err := c.scan(ctx, start, progress, func(addr Address) bool {
		found, ok = addr, true
		return false
	})
	if err != nil {
		return 0, false, err
	}

	if ok {
		if err := c.DisconnectAll(ctx); err != nil {
			return 0, false, err
		}
		c.metrics.addDeviceFoundCount(1)
	}

	c.metrics.incScanCount()

	return found, ok, nil
}

// FindAll probes scan positions from start through 64 and returns the
// addresses of every device that acknowledged, in ascending scan order. The
// bus is disconnected once after the sweep. Address 0, which is probed at
// both position 0 and 64, is reported once.
func (c *Connection) FindAll(ctx context.Context, start int, progress ScanProgressFunc) ([]Address, error) {
	var (
		seen  [MaxAddress + 1]bool
		found []Address
	)

	err := c.scan(ctx, start, progress, func(addr Address) bool {
		if !seen[addr] {
			seen[addr] = true
			found = append(found, addr)
		}

		return true
	})
	if err != nil {
		return nil, err
	}

	if err := c.DisconnectAll(ctx); err != nil {
		return nil, err
	}

	c.metrics.incScanCount()
	c.metrics.addDeviceFoundCount(len(found))

	c.logger.Info("gsioc: bus scan completed", "start", start, "found", len(found))

	return found, nil
}

// scan runs the position loop. onFound returns false to stop the sweep.
func (c *Connection) scan(ctx context.Context, start int, progress ScanProgressFunc, onFound func(Address) bool) error {
	if start < 0 || start > scanLastPosition {
		return fmt.Errorf("%w: %d", ErrInvalidScanStart, start)
	}

	for pos := start; pos <= scanLastPosition; pos++ {
		addr := NewAddress(pos)

		if progress != nil {
			progress(pos, addr)
		}

		ok, err := c.Connect(ctx, addr)
		if err != nil {
			return err
		}

		if ok && !onFound(addr) {
			return nil
		}

		if err := c.clock.Sleep(ctx, c.cfg.ScanInterval()); err != nil {
			return err
		}
	}

	return nil
}
