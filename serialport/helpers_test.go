package serialport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

var errFakeClosed = errors.New("fake port closed")

// fakePort is an in-memory serial.Port. Only the methods used by Port are
// implemented; the embedded interface panics on anything else.
type fakePort struct {
	serial.Port

	mu          sync.Mutex
	written     []byte
	rts, dtr    bool
	readTimeout time.Duration

	incoming  chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		incoming: make(chan []byte, 16),
		readErr:  make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	timeout := f.readTimeout
	f.mu.Unlock()

	select {
	case data := <-f.incoming:
		return copy(p, data), nil
	case err := <-f.readErr:
		return 0, err
	case <-f.closed:
		return 0, errFakeClosed
	case <-time.After(timeout):
		return 0, nil
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.written = append(f.written, p...)

	return len(p), nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readTimeout = t

	return nil
}

func (f *fakePort) SetRTS(rts bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rts = rts

	return nil
}

func (f *fakePort) SetDTR(dtr bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dtr = dtr

	return nil
}

func (f *fakePort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakePort) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]byte(nil), f.written...)
}

// recordingOpener returns an Opener handing out fake and recording each call.
type recordingOpener struct {
	mu    sync.Mutex
	fake  *fakePort
	names []string
	modes []*serial.Mode
	err   error
}

func (o *recordingOpener) open(name string, mode *serial.Mode) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.names = append(o.names, name)
	o.modes = append(o.modes, mode)
	if o.err != nil {
		return nil, o.err
	}

	return o.fake, nil
}

func (o *recordingOpener) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.names)
}

// newTestPort creates a Port on a fake serial port with a short read
// timeout.
func newTestPort(t *testing.T) (*Port, *fakePort, *recordingOpener) {
	t.Helper()

	fake := newFakePort()
	opener := &recordingOpener{fake: fake}

	settings := DefaultSettings("/dev/ttyUSB0")
	settings.ReadTimeout = 5 * time.Millisecond

	p, err := New(settings, WithOpener(opener.open))
	if err != nil {
		t.Fatalf("newTestPort: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	return p, fake, opener
}
