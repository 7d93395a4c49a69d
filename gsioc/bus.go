package gsioc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-gsioc/internal/pool"
	"github.com/arloliu/go-gsioc/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Bus serializes access to one Connection.
//
// A single protocol loop goroutine owns the connection and executes queued
// requests one at a time, so any number of Device handles and callers may
// use the bus concurrently. Each request runs to completion before the next
// starts; a connect and the command that follows it are queued as one
// request so no other caller can re-address the bus in between.
type Bus struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	conn      *Connection
	cfg       *ConnectionConfig
	logger    logger.Logger

	reqChan chan *busRequest
	wg      sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// devices caches the result of the last Scan.
	devices *xsync.MapOf[Address, DeviceInfo]
}

// Request states. A queued request is claimed exactly once, either by the
// protocol loop (running) or by a caller that gave up waiting (abandoned).
const (
	reqQueued int32 = iota
	reqRunning
	reqAbandoned
)

// busRequest is a unit of work for the protocol loop. done is signaled with
// the result of fn once fn has returned.
type busRequest struct {
	ctx   context.Context
	fn    func(ctx context.Context, conn *Connection) error
	done  chan error
	state atomic.Int32
}

// NewBus starts the protocol loop for conn. ctx bounds the lifetime of the
// loop; cancelling it has the same effect as Close except that the
// connection stays open.
func NewBus(ctx context.Context, conn *Connection) (*Bus, error) {
	if conn == nil {
		return nil, errors.New("gsioc: connection is nil")
	}

	b := &Bus{
		conn:    conn,
		cfg:     conn.cfg,
		logger:  conn.logger,
		reqChan: make(chan *busRequest, conn.cfg.queueSize),
		devices: xsync.NewMapOf[Address, DeviceInfo](),
	}
	b.ctx, b.ctxCancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.protocolLoop()

	return b, nil
}

// Do runs fn on the protocol loop with exclusive access to the connection.
//
// The context passed to fn is cancelled when either ctx or the bus ends.
// Do returns ErrQueueTimeout if the request could not be queued within the
// configured queue timeout, and ErrBusClosed once the bus is closed.
//
// Do never returns while fn is running: a request still queued when ctx or
// the bus ends is dropped, one already running is waited for.
func (b *Bus) Do(ctx context.Context, fn func(ctx context.Context, conn *Connection) error) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	req := &busRequest{ctx: ctx, fn: fn, done: make(chan error, 1)}

	timer := pool.GetTimer(b.cfg.queueTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueTimeout
	case b.reqChan <- req:
	}

	var err error
	select {
	case err = <-req.done:
	case <-ctx.Done():
		err = b.abandon(req, ctx.Err())
	case <-b.ctx.Done():
		err = b.abandon(req, ErrBusClosed)
	}

	return b.requestErr(ctx, err)
}

// abandon drops a queued request and returns cause, or waits for a running
// one to finish. fn observes the cancellation through its own context.
func (b *Bus) abandon(req *busRequest, cause error) error {
	if req.state.CompareAndSwap(reqQueued, reqAbandoned) {
		return cause
	}

	return <-req.done
}

// requestErr reports a cancellation caused by the caller as ctx.Err() and
// one caused by the bus as ErrBusClosed.
func (b *Bus) requestErr(ctx context.Context, err error) error {
	if err == nil || !(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	return err
}

// Close stops the protocol loop, fails queued requests with ErrBusClosed
// and closes the connection.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.ctxCancel()
		b.wg.Wait()
		b.failPending()

		b.closeErr = b.conn.Close()
		b.logger.Debug("gsioc: bus closed")
	})

	return b.closeErr
}

// GetMetrics returns the metrics of the underlying connection.
func (b *Bus) GetMetrics() *ConnectionMetrics {
	return b.conn.GetMetrics()
}

func (b *Bus) protocolLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case req := <-b.reqChan:
			b.serve(req)
		}
	}
}

func (b *Bus) serve(req *busRequest) {
	if !req.state.CompareAndSwap(reqQueued, reqRunning) {
		return
	}

	if err := req.ctx.Err(); err != nil {
		req.done <- err
		return
	}

	ctx, cancel := context.WithCancel(req.ctx)
	stop := context.AfterFunc(b.ctx, cancel)

	err := req.fn(ctx, b.conn)

	stop()
	cancel()

	req.done <- err
}

func (b *Bus) failPending() {
	for {
		select {
		case req := <-b.reqChan:
			if req.state.CompareAndSwap(reqQueued, reqAbandoned) {
				req.done <- ErrBusClosed
			}
		default:
			return
		}
	}
}

// --- Engine operations ---

// Connect selects addr; see Connection.Connect.
func (b *Bus) Connect(ctx context.Context, addr Address) (bool, error) {
	var ok bool
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		var err error
		ok, err = conn.Connect(ctx, addr)

		return err
	})

	return ok, err
}

// DisconnectAll deselects every device; see Connection.DisconnectAll.
func (b *Bus) DisconnectAll(ctx context.Context) error {
	return b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		return conn.DisconnectAll(ctx)
	})
}

// ExecuteImmediate connects to addr and runs an immediate command as one
// queued request. It returns ErrDeviceNotFound if the device does not
// acknowledge its address.
func (b *Bus) ExecuteImmediate(ctx context.Context, addr Address, cmd byte) (*Response, error) {
	var resp *Response
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		if err := connectOrFail(ctx, conn, addr); err != nil {
			return err
		}

		var err error
		resp, err = conn.ExecuteImmediate(ctx, cmd)

		return err
	})

	return resp, err
}

// ExecuteBuffered connects to addr and runs a buffered command as one
// queued request. It returns ErrDeviceNotFound if the device does not
// acknowledge its address.
func (b *Bus) ExecuteBuffered(ctx context.Context, addr Address, cmd byte, params string) error {
	return b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		if err := connectOrFail(ctx, conn, addr); err != nil {
			return err
		}

		return conn.ExecuteBuffered(ctx, cmd, params)
	})
}

// FindFirst runs Connection.FindFirst on the protocol loop.
func (b *Bus) FindFirst(ctx context.Context, start int, progress ScanProgressFunc) (Address, bool, error) {
	var (
		addr Address
		ok   bool
	)
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		var err error
		addr, ok, err = conn.FindFirst(ctx, start, progress)

		return err
	})

	return addr, ok, err
}

// FindAll runs Connection.FindAll on the protocol loop.
func (b *Bus) FindAll(ctx context.Context, start int, progress ScanProgressFunc) ([]Address, error) {
	var found []Address
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		var err error
		found, err = conn.FindAll(ctx, start, progress)

		return err
	})

	return found, err
}

// ResetDevice runs Connection.ResetDevice on the protocol loop.
func (b *Bus) ResetDevice(ctx context.Context, addr Address) (string, error) {
	var text string
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		var err error
		text, err = conn.ResetDevice(ctx, addr)

		return err
	})

	return text, err
}

// ModuleInfo runs Connection.ModuleInfo on the protocol loop.
func (b *Bus) ModuleInfo(ctx context.Context, addr Address) (string, error) {
	var text string
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		var err error
		text, err = conn.ModuleInfo(ctx, addr)

		return err
	})

	return text, err
}

// Scan finds every device from start and reads its module information. The
// result replaces the device cache returned by Devices.
//
// The whole scan is one queued request.
func (b *Bus) Scan(ctx context.Context, start int, progress ScanProgressFunc) ([]DeviceInfo, error) {
	var infos []DeviceInfo
	err := b.Do(ctx, func(ctx context.Context, conn *Connection) error {
		found, err := conn.FindAll(ctx, start, progress)
		if err != nil {
			return err
		}

		infos = make([]DeviceInfo, 0, len(found))
		for _, addr := range found {
			text, err := conn.ModuleInfo(ctx, addr)
			if errors.Is(err, ErrDeviceNotFound) {
				b.logger.Warn("gsioc: device vanished during scan", "address", addr)
				continue
			}
			if err != nil {
				return err
			}

			infos = append(infos, DeviceInfo{Address: addr, ModuleInfo: text})
		}

		return conn.DisconnectAll(ctx)
	})
	if err != nil {
		return nil, err
	}

	b.devices.Clear()
	for _, info := range infos {
		b.devices.Store(info.Address, info)
	}

	return infos, nil
}

// Devices returns the devices found by the last Scan, sorted by address.
func (b *Bus) Devices() []DeviceInfo {
	infos := make([]DeviceInfo, 0, b.devices.Size())
	b.devices.Range(func(_ Address, info DeviceInfo) bool {
		infos = append(infos, info)
		return true
	})

	slices.SortFunc(infos, func(a, b DeviceInfo) int {
		return int(a.Address) - int(b.Address)
	})

	return infos
}

// DeviceInfo returns the cached scan result for addr.
func (b *Bus) DeviceInfo(addr Address) (DeviceInfo, bool) {
	return b.devices.Load(addr.Masked())
}

// Device returns a handle for the device at addr.
func (b *Bus) Device(addr Address) *Device {
	return &Device{addr: addr.Masked(), bus: b}
}

func connectOrFail(ctx context.Context, conn *Connection, addr Address) error {
	ok, err := conn.Connect(ctx, addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: address %d", ErrDeviceNotFound, addr.Masked())
	}

	return nil
}
