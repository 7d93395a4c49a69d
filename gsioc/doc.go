// Package gsioc implements the master side of the GSIOC serial bus used by
// laboratory instruments such as peristaltic pumps and liquid handlers.
//
// GSIOC is a single-master, multi-slave bus with a 6-bit address space. The
// master talks to one device at a time and all exchanges are made of single
// byte writes interleaved with fixed settle delays:
//
//   - Address frame: (address & 0x3F) | 0x80. The addressed device echoes the
//     frame, or answers 0xFE first and echoes a repeated frame.
//   - Disconnect: 0xFF deselects every device.
//   - Immediate command: one command byte. The device streams its answer in
//     chunks, each acknowledged by the master with ACK (0x06). The last byte
//     of the answer carries the high bit (0x80) as an end-of-message marker.
//   - Buffered command: LF (0x0A), the command byte, the parameter characters
//     and CR (0x0D), each byte echoed by the device before the next is sent.
//
// # Engine
//
// [Connection] owns one [Transport] and runs the exchanges. It is not safe
// for concurrent use: at most one operation may be in flight per transport.
// Protocol non-acknowledgement ("no device at this address") is reported as
// a false result, never as an error; errors are reserved for transport
// failures, cancellation and devices that stop behaving.
//
// # Serialized access
//
// [Bus] wraps a Connection in a single protocol loop goroutine and queues
// requests from any number of callers. [Device] is a lightweight handle bound
// to one address on a Bus and is what instrument specific wrappers build on.
//
// # Timing
//
// Settle and poll delays are hardware requirements of the bus. They are
// configurable through [ConnOption] values and all waits go through a
// [Clock], so tests can run the protocol without wall-clock delays.
package gsioc
