// Package serialport implements the GSIOC transport on a local serial port
// using go.bug.st/serial.
//
// A reader goroutine moves received bytes into an in-memory buffer as they
// arrive, so the protocol engine can ask how many bytes are pending and
// collect them without blocking.
package serialport

import (
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/arloliu/go-gsioc/gsioc"
	"github.com/arloliu/go-gsioc/logger"
)

var _ gsioc.Transport = (*Port)(nil)

var (
	// ErrNotOpen is returned by I/O on a port that is not open.
	ErrNotOpen = errors.New("serialport: port not open")
	// ErrOpenerNil is returned by WithOpener(nil).
	ErrOpenerNil = errors.New("serialport: opener is nil")
)

// Opener opens a serial port. serial.Open is the default; tests replace it.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// Port is a GSIOC transport over a serial port.
//
// Port is safe for concurrent use, although the gsioc engine drives it from
// a single goroutine.
type Port struct {
	settings Settings
	opener   Opener
	logger   logger.Logger

	mu      sync.Mutex
	port    serial.Port
	rx      []byte
	readErr error
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option is a functional option for configuring a Port.
type Option interface {
	apply(*Port) error
}

type optFunc func(*Port) error

func (f optFunc) apply(p *Port) error { return f(p) }

// WithOpener replaces serial.Open.
func WithOpener(opener Opener) Option {
	return optFunc(func(p *Port) error {
		if opener == nil {
			return ErrOpenerNil
		}
		p.opener = opener

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(p *Port) error {
		if l == nil {
			return errors.New("serialport: logger must not be nil")
		}
		p.logger = l

		return nil
	})
}

// New creates a closed Port with the given settings.
func New(settings Settings, opts ...Option) (*Port, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	p := &Port{
		settings: settings,
		opener:   serial.Open,
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Settings returns the port settings, including the current RTS and DTR
// states.
func (p *Port) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.settings
}

// Open opens the port and starts the reader. Opening an open port is a
// no-op.
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		return nil
	}

	port, err := p.opener(p.settings.Port, p.settings.mode())
	if err != nil {
		return fmt.Errorf("serialport: open %s: %w", p.settings.Port, err)
	}

	if err := port.SetReadTimeout(p.settings.ReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("serialport: set read timeout: %w", err)
	}

	p.port = port
	p.rx = nil
	p.readErr = nil
	p.done = make(chan struct{})

	p.wg.Add(1)
	go p.readLoop(port, p.done)

	p.logger.Debug("serialport: opened",
		"port", p.settings.Port,
		"baud_rate", p.settings.BaudRate,
		"parity", p.settings.Parity,
		"data_bits", p.settings.DataBits,
		"stop_bits", p.settings.StopBits,
	)

	return nil
}

// Close stops the reader and closes the port. Pending received bytes are
// discarded.
func (p *Port) Close() error {
	p.mu.Lock()
	port := p.port
	if port == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.done)
	p.port = nil
	p.rx = nil
	p.mu.Unlock()

	err := port.Close()
	p.wg.Wait()

	if err != nil {
		return fmt.Errorf("serialport: close %s: %w", p.settings.Port, err)
	}

	p.logger.Debug("serialport: closed", "port", p.settings.Port)

	return nil
}

// IsOpen reports whether the port is open.
func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.port != nil
}

// Write writes b to the port.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()

	if port == nil {
		return 0, ErrNotOpen
	}

	return port.Write(b)
}

// BytesAvailable returns the number of received bytes not yet collected. A
// reader failure is reported here once the buffer is empty.
func (p *Port) BytesAvailable() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, ErrNotOpen
	}
	if len(p.rx) == 0 && p.readErr != nil {
		return 0, p.readErr
	}

	return len(p.rx), nil
}

// ReadAvailable returns and removes every received byte.
func (p *Port) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil, ErrNotOpen
	}
	if len(p.rx) == 0 && p.readErr != nil {
		return nil, p.readErr
	}

	data := p.rx
	p.rx = nil

	return data, nil
}

// SetRTS sets the RTS line. On a closed port the state is applied at the
// next Open.
func (p *Port) SetRTS(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings.RTS = enabled
	if p.port == nil {
		return nil
	}

	return p.port.SetRTS(enabled)
}

// SetDTR sets the DTR line. On a closed port the state is applied at the
// next Open.
func (p *Port) SetDTR(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings.DTR = enabled
	if p.port == nil {
		return nil
	}

	return p.port.SetDTR(enabled)
}

func (p *Port) readLoop(port serial.Port, done <-chan struct{}) {
	defer p.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)

		select {
		case <-done:
			return
		default:
		}

		if err != nil {
			p.mu.Lock()
			p.readErr = fmt.Errorf("serialport: read %s: %w", p.settings.Port, err)
			p.mu.Unlock()

			p.logger.Error("serialport: reader stopped", "port", p.settings.Port, "error", err)

			return
		}

		// n == 0 is a read timeout
		if n > 0 {
			p.mu.Lock()
			p.rx = append(p.rx, buf[:n]...)
			p.mu.Unlock()
		}
	}
}

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}

	return ports, nil
}
