package simbus

import "sync"

// BufferedCommand is a buffered command received by a simulated device.
type BufferedCommand struct {
	Command byte
	Params  string
}

// Device is a simulated GSIOC device.
type Device struct {
	mu sync.Mutex

	addr byte

	// behavior
	query      bool
	silent     bool
	replyWith  *byte
	noEcho     bool
	immediate  map[byte][][]byte
	streamCmds map[byte][]byte

	// state
	selected  bool
	queried   bool
	inBuffer  bool
	bufCmd    []byte
	pending   [][]byte
	streaming []byte
	buffered  []BufferedCommand
	commands  []byte
}

// NewDevice creates a device answering at addr.
func NewDevice(addr byte) *Device {
	return &Device{
		addr:       addr & addressMask,
		immediate:  make(map[byte][][]byte),
		streamCmds: make(map[byte][]byte),
	}
}

// Addr returns the device address.
func (d *Device) Addr() byte { return d.addr }

// WithQuery makes the device answer its first address frame with 0xFE and
// acknowledge only the repeated frame.
func (d *Device) WithQuery() *Device {
	d.query = true
	return d
}

// Silent makes the device ignore its address frame.
func (d *Device) Silent() *Device {
	d.silent = true
	return d
}

// ReplyWith makes the device answer its address frame with b.
func (d *Device) ReplyWith(b byte) *Device {
	d.replyWith = &b
	return d
}

// NoEcho disables the echo of buffered command bytes.
func (d *Device) NoEcho() *Device {
	d.noEcho = true
	return d
}

// OnImmediate scripts the response chunks of an immediate command. The
// first chunk is sent on the command byte, each following one on an ACK.
// Chunks are sent verbatim, the caller sets the end-of-message bit.
func (d *Device) OnImmediate(cmd byte, chunks ...[]byte) *Device {
	d.immediate[cmd] = chunks
	return d
}

// OnImmediateText scripts text as a one byte per chunk response with the
// end-of-message bit on the last byte, the way GSIOC devices answer.
func (d *Device) OnImmediateText(cmd byte, text string) *Device {
	chunks := make([][]byte, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if i == len(text)-1 {
			c |= lastCharBit
		}
		chunks[i] = []byte{c}
	}

	return d.OnImmediate(cmd, chunks...)
}

// StreamForever makes the device answer cmd and every following ACK with
// chunk, never finishing.
func (d *Device) StreamForever(cmd byte, chunk []byte) *Device {
	d.streamCmds[cmd] = chunk
	return d
}

// Buffered returns the buffered commands received so far.
func (d *Device) Buffered() []BufferedCommand {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]BufferedCommand(nil), d.buffered...)
}

// Commands returns the immediate command bytes received so far.
func (d *Device) Commands() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]byte(nil), d.commands...)
}

// Selected reports whether the device is currently addressed.
func (d *Device) Selected() bool {
	return d.isSelected()
}

func (d *Device) isSelected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.selected
}

func (d *Device) deselect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.selected = false
	d.queried = false
	d.inBuffer = false
	d.pending = nil
	d.streaming = nil
}

// address handles the device's own address frame.
func (d *Device) address(frame byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.silent {
		return nil
	}

	if d.query && !d.queried {
		d.queried = true
		return []byte{queryByte}
	}

	d.selected = true
	d.queried = false
	d.pending = nil
	d.streaming = nil

	if d.replyWith != nil {
		return []byte{*d.replyWith}
	}

	return []byte{frame}
}

// receive handles a non-address byte while selected.
func (d *Device) receive(x byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inBuffer {
		if x == crByte {
			cmd := BufferedCommand{}
			if len(d.bufCmd) > 0 {
				cmd.Command = d.bufCmd[0]
				cmd.Params = string(d.bufCmd[1:])
			}
			d.buffered = append(d.buffered, cmd)
			d.inBuffer = false
			d.bufCmd = nil
		} else {
			d.bufCmd = append(d.bufCmd, x)
		}

		return d.echo(x)
	}

	switch x {
	case lfByte:
		d.inBuffer = true
		d.bufCmd = nil

		return d.echo(x)

	case ackByte:
		if d.streaming != nil {
			return append([]byte(nil), d.streaming...)
		}
		if len(d.pending) == 0 {
			return nil
		}
		next := d.pending[0]
		d.pending = d.pending[1:]

		return append([]byte(nil), next...)
	}

	d.commands = append(d.commands, x)

	if chunk, ok := d.streamCmds[x]; ok {
		d.streaming = chunk
		return append([]byte(nil), chunk...)
	}

	chunks := d.immediate[x]
	if len(chunks) == 0 {
		return nil
	}
	d.pending = chunks[1:]

	return append([]byte(nil), chunks[0]...)
}

func (d *Device) echo(x byte) []byte {
	if d.noEcho {
		return nil
	}

	return []byte{x}
}
