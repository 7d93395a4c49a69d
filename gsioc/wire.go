package gsioc

// Bytes with a fixed meaning on the bus.
const (
	// DisconnectByte deselects every device on the bus.
	DisconnectByte byte = 0xFF
	// QueryByte is sent by a device that wants its address frame repeated.
	QueryByte byte = 0xFE
	// ACK acknowledges a received chunk of an immediate command response.
	ACK byte = 0x06
	// LF opens a buffered command.
	LF byte = 0x0A
	// CR terminates a buffered command.
	CR byte = 0x0D

	// lastCharBit marks the final byte of an immediate command response.
	lastCharBit byte = 0x80
)

const (
	// ResetCommand is the immediate command for a master reset.
	ResetCommand byte = '$'
	// ModuleInfoCommand is the immediate command returning the module
	// identification string.
	ModuleInfoCommand byte = '%'
)

func isSevenBit(b byte) bool {
	return b&0x80 == 0
}
