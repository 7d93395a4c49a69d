package gsioc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-gsioc/internal/simbus"
)

func TestNewBus_NilConnection(t *testing.T) {
	_, err := NewBus(context.Background(), nil)
	require.Error(t, err)
}

func TestBus_ExecuteImmediate(t *testing.T) {
	sim := simbus.New(simbus.NewDevice(3).OnImmediateText('%', "GX-271 V2.0"))
	bus := newTestBus(t, sim)

	resp, err := bus.ExecuteImmediate(context.Background(), 3, '%')
	require.NoError(t, err)
	assert.Equal(t, "GX-271 V2.0", resp.Text)
	assert.Equal(t, byte(0x83), sim.Written()[0])
}

func TestBus_DeviceNotFound(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim)

	_, err := bus.ExecuteImmediate(context.Background(), 3, '%')
	require.ErrorIs(t, err, ErrDeviceNotFound)

	err = bus.ExecuteBuffered(context.Background(), 3, 'X', "1")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	// nothing but the two address frames reached the bus
	assert.Equal(t, []byte{0x83, 0x83}, sim.Written())
}

func TestBus_ConcurrentCallers(t *testing.T) {
	sim := simbus.New(
		simbus.NewDevice(3).OnImmediateText('%', "pump"),
		simbus.NewDevice(9).OnImmediateText('%', "handler"),
	)
	bus := newTestBus(t, sim)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			addr := Address(3)
			if i%2 == 1 {
				addr = 9
			}
			resp, err := bus.ExecuteImmediate(context.Background(), addr, '%')
			errs[i] = err
			if err == nil {
				results[i] = resp.Text
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if i%2 == 1 {
			assert.Equal(t, "handler", results[i])
		} else {
			assert.Equal(t, "pump", results[i])
		}
	}

	assert.Equal(t, uint64(callers), bus.GetMetrics().ImmediateCount.Load())
}

func TestBus_Scan(t *testing.T) {
	sim := simbus.New(
		simbus.NewDevice(40).OnImmediateText('%', "GX-271"),
		simbus.NewDevice(5).OnImmediateText('%', "VERITY 4020"),
	)
	bus := newTestBus(t, sim)

	infos, err := bus.Scan(context.Background(), 0, nil)
	require.NoError(t, err)

	want := []DeviceInfo{
		{Address: 5, ModuleInfo: "VERITY 4020"},
		{Address: 40, ModuleInfo: "GX-271"},
	}
	assert.Equal(t, want, infos)
	assert.Equal(t, want, bus.Devices())
	assert.Equal(t, "5 - VERITY 4020", infos[0].String())

	info, ok := bus.DeviceInfo(40)
	require.True(t, ok)
	assert.Equal(t, "GX-271", info.ModuleInfo)

	_, ok = bus.DeviceInfo(6)
	assert.False(t, ok)

	written := sim.Written()
	assert.Equal(t, byte(DisconnectByte), written[len(written)-1])
}

func TestBus_ScanReplacesCache(t *testing.T) {
	sim := simbus.New(simbus.NewDevice(5).OnImmediateText('%', "first"))
	bus := newTestBus(t, sim)

	_, err := bus.Scan(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, bus.Devices(), 1)

	infos, err := bus.Scan(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Empty(t, bus.Devices())
}

func TestBus_FindFirstAndAll(t *testing.T) {
	sim := simbus.New(simbus.NewDevice(12), simbus.NewDevice(33))
	bus := newTestBus(t, sim)

	addr, ok, err := bus.FindFirst(context.Background(), 0, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Address(12), addr)

	found, err := bus.FindAll(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []Address{12, 33}, found)
}

func TestBus_Device(t *testing.T) {
	dev := simbus.NewDevice(22).
		OnImmediateText('%', "GX-271").
		OnImmediateText('$', "$")
	sim := simbus.New(dev)
	bus := newTestBus(t, sim)

	d := bus.Device(Address(0x40 | 22))
	assert.Equal(t, Address(22), d.Address())

	ctx := context.Background()

	ok, err := d.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := d.ModuleInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GX-271", info)

	text, err := d.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$", text)

	require.NoError(t, d.ExecuteBuffered(ctx, 'X', "100/200"))
	assert.Equal(t, []simbus.BufferedCommand{{Command: 'X', Params: "100/200"}}, dev.Buffered())

	resp, err := d.ExecuteImmediate(ctx, '%')
	require.NoError(t, err)
	assert.Equal(t, "GX-271", resp.Text)
}

func TestBus_Close(t *testing.T) {
	sim := simbus.New(simbus.NewDevice(3))
	bus := newTestBus(t, sim)

	ok, err := bus.Connect(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, sim.IsOpen())

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.False(t, sim.IsOpen())

	_, err = bus.Connect(context.Background(), 3)
	require.ErrorIs(t, err, ErrBusClosed)

	err = bus.DisconnectAll(context.Background())
	require.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_QueueTimeout(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim, WithQueueSize(1), WithQueueTimeout(50*time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context, _ *Connection) error {
		close(started)
		<-release
		return nil
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- bus.Do(context.Background(), blocking) }()
	<-started

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- bus.Do(context.Background(), func(context.Context, *Connection) error { return nil })
	}()

	// wait for the second request to occupy the only queue slot
	require.Eventually(t, func() bool { return len(bus.reqChan) == 1 }, time.Second, time.Millisecond)

	err := bus.Do(context.Background(), func(context.Context, *Connection) error { return nil })
	require.ErrorIs(t, err, ErrQueueTimeout)

	close(release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
}

func TestBus_CallerContextCancelled(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	fnErr := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := bus.Do(ctx, func(ctx context.Context, _ *Connection) error {
		<-ctx.Done()
		fnErr <- ctx.Err()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, <-fnErr, context.Canceled)
}

func TestBus_CloseCancelsRunningRequest(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- bus.Do(context.Background(), func(ctx context.Context, _ *Connection) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	require.NoError(t, bus.Close())

	require.ErrorIs(t, <-done, ErrBusClosed)
}

// newWallClockBus creates a Bus on sim driven by the system clock.
func newWallClockBus(t *testing.T, sim *simbus.Bus, opts ...ConnOption) *Bus {
	t.Helper()

	cfg, err := NewConnectionConfig(opts...)
	require.NoError(t, err)

	conn, err := NewConnection(sim, cfg)
	require.NoError(t, err)

	bus, err := NewBus(context.Background(), conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestBus_ConnectDeadlineDuringSettle(t *testing.T) {
	sim := simbus.New(simbus.NewDevice(5))
	bus := newWallClockBus(t, sim, WithConnectSettle(300*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	ok, err := bus.Connect(ctx, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 300*time.Millisecond)

	// the bus keeps serving after an abandoned exchange
	ok, err = bus.Connect(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBus_DoWaitsForRunningRequest(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	finished := false
	err := bus.Do(ctx, func(ctx context.Context, _ *Connection) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished = true

		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, finished)
}

func TestBus_QueuedRequestDroppedOnCancel(t *testing.T) {
	sim := simbus.New()
	bus := newTestBus(t, sim)

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- bus.Do(context.Background(), func(context.Context, *Connection) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := bus.Do(ctx, func(context.Context, *Connection) error {
		ran.Store(true)
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-firstDone)

	// a later request proves the loop has moved past the dropped one
	require.NoError(t, bus.Do(context.Background(), func(context.Context, *Connection) error { return nil }))
	assert.False(t, ran.Load())
}
