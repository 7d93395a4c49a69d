package gsioc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-gsioc/internal/simbus"
)

// fakeClock is a virtual clock. Sleep advances time immediately and records
// the wait in the simulated bus event log as "sleep <d>".
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
	sim *simbus.Bus
}

func newFakeClock(sim *simbus.Bus) *fakeClock {
	return &fakeClock{
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		sim: sim,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	if c.sim != nil {
		c.sim.Mark("sleep " + d.String())
	}

	return nil
}

// elapsed returns the virtual time passed since the clock was created.
func (c *fakeClock) elapsed() time.Duration {
	return c.Now().Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

// newTestConfig creates a ConnectionConfig with default bus timings on a
// virtual clock bound to sim.
func newTestConfig(t *testing.T, sim *simbus.Bus, opts ...ConnOption) (*ConnectionConfig, *fakeClock) {
	t.Helper()

	clock := newFakeClock(sim)
	cfg, err := NewConnectionConfig(append([]ConnOption{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg, clock
}

// newTestConnection creates a Connection on sim with a virtual clock.
func newTestConnection(t *testing.T, sim *simbus.Bus, opts ...ConnOption) (*Connection, *fakeClock) {
	t.Helper()

	cfg, clock := newTestConfig(t, sim, opts...)
	conn, err := NewConnection(sim, cfg)
	if err != nil {
		t.Fatalf("newTestConnection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn, clock
}

// newTestBus creates a Bus on sim with a virtual clock.
func newTestBus(t *testing.T, sim *simbus.Bus, opts ...ConnOption) *Bus {
	t.Helper()

	conn, _ := newTestConnection(t, sim, opts...)
	bus, err := NewBus(context.Background(), conn)
	if err != nil {
		t.Fatalf("newTestBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}
