package gsioc

// Transport is the duplex byte channel a Connection drives.
//
// The engine never blocks in Read: it polls BytesAvailable after each settle
// delay and only then collects what arrived with ReadAvailable. The
// serialport package provides an implementation on top of a real serial port.
type Transport interface {
	// Open opens the underlying channel. Opening an open transport is a no-op.
	Open() error
	// Close releases the underlying channel.
	Close() error
	// IsOpen reports whether the channel is open.
	IsOpen() bool
	// Write writes p to the channel.
	Write(p []byte) (int, error)
	// BytesAvailable returns the number of received bytes that can be read
	// without blocking.
	BytesAvailable() (int, error)
	// ReadAvailable returns every received byte that can be read without
	// blocking. It may return an empty slice.
	ReadAvailable() ([]byte, error)
	// SetRTS sets the RTS modem line.
	SetRTS(enabled bool) error
	// SetDTR sets the DTR modem line.
	SetDTR(enabled bool) error
}
