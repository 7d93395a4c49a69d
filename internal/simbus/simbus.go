// Package simbus simulates a GSIOC bus behind the transport capability set
// used by the gsioc engine.
//
// Devices react synchronously to every byte the master writes: a reply is
// available to the master as soon as Write returns. Every write, read and
// caller supplied mark is recorded in an event log so tests can assert the
// exact byte and timing sequence of an exchange.
package simbus

import (
	"errors"
	"fmt"
	"sync"
)

const (
	disconnectByte = 0xFF
	queryByte      = 0xFE
	ackByte        = 0x06
	lfByte         = 0x0A
	crByte         = 0x0D

	addressMask  = 0x3F
	addressFrame = 0x80
	lastCharBit  = 0x80
)

// ErrClosed is returned by I/O on a closed bus.
var ErrClosed = errors.New("simbus: transport closed")

// EventKind classifies a recorded event.
type EventKind int

const (
	EventWrite EventKind = iota
	EventRead
	EventMark
)

// Event is one entry of the bus event log.
type Event struct {
	Kind EventKind
	Data []byte
	Note string
}

// String renders the event as "write 0A", "read 41 42" or the mark note.
func (e Event) String() string {
	switch e.Kind {
	case EventWrite:
		return "write " + hexBytes(e.Data)
	case EventRead:
		return "read " + hexBytes(e.Data)
	default:
		return e.Note
	}
}

// Bus is a simulated GSIOC bus with any number of devices.
type Bus struct {
	mu      sync.Mutex
	open    bool
	rx      []byte
	devices []*Device
	events  []Event

	rts, dtr bool

	openCount int
	openErr   error
	writeErr  error
	readErr   error
}

// New creates a closed bus with the given devices attached.
func New(devices ...*Device) *Bus {
	return &Bus{devices: devices}
}

// Add attaches d to the bus.
func (b *Bus) Add(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.devices = append(b.devices, d)
}

// --- transport capability set ---

func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return b.openErr
	}
	if !b.open {
		b.open = true
		b.openCount++
	}

	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	b.rx = nil

	return nil
}

func (b *Bus) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.open
}

func (b *Bus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return 0, ErrClosed
	}
	if b.writeErr != nil {
		return 0, b.writeErr
	}

	b.events = append(b.events, Event{Kind: EventWrite, Data: append([]byte(nil), p...)})
	for _, x := range p {
		b.handle(x)
	}

	return len(p), nil
}

func (b *Bus) BytesAvailable() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return 0, ErrClosed
	}

	return len(b.rx), nil
}

func (b *Bus) ReadAvailable() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil, ErrClosed
	}
	if b.readErr != nil {
		return nil, b.readErr
	}

	data := b.rx
	b.rx = nil
	b.events = append(b.events, Event{Kind: EventRead, Data: data})

	return data, nil
}

func (b *Bus) SetRTS(enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rts = enabled

	return nil
}

func (b *Bus) SetDTR(enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dtr = enabled

	return nil
}

// --- test controls ---

// Mark appends a note to the event log.
func (b *Bus) Mark(note string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{Kind: EventMark, Note: note})
}

// Events returns a copy of the event log.
func (b *Bus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Event(nil), b.events...)
}

// EventStrings returns the event log rendered with Event.String.
func (b *Bus) EventStrings() []string {
	events := b.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}

	return out
}

// Written returns every byte the master wrote, in order.
func (b *Bus) Written() []byte {
	var out []byte
	for _, e := range b.Events() {
		if e.Kind == EventWrite {
			out = append(out, e.Data...)
		}
	}

	return out
}

// ResetEvents clears the event log.
func (b *Bus) ResetEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = nil
}

// Inject queues bytes for the master as if a device had sent them.
func (b *Bus) Inject(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rx = append(b.rx, p...)
}

// FailOpen makes Open return err.
func (b *Bus) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.openErr = err
}

// FailWrites makes every Write return err. A nil err restores writes.
func (b *Bus) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeErr = err
}

// FailReads makes every ReadAvailable return err.
func (b *Bus) FailReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readErr = err
}

// OpenCount returns how many times the bus went from closed to open.
func (b *Bus) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.openCount
}

// LineState returns the RTS and DTR line states.
func (b *Bus) LineState() (rts, dtr bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.rts, b.dtr
}

// handle dispatches one master byte. Caller holds b.mu.
func (b *Bus) handle(x byte) {
	switch {
	case x == disconnectByte:
		for _, d := range b.devices {
			d.deselect()
		}

	case x&addressFrame != 0:
		for _, d := range b.devices {
			if d.addr&addressMask == x&addressMask {
				b.rx = append(b.rx, d.address(x)...)
			} else {
				d.deselect()
			}
		}

	default:
		for _, d := range b.devices {
			if d.isSelected() {
				b.rx = append(b.rx, d.receive(x)...)
			}
		}
	}
}

func hexBytes(p []byte) string {
	if len(p) == 0 {
		return "-"
	}

	s := ""
	for i, c := range p {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%02X", c)
	}

	return s
}
