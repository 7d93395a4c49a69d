package gsioc

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a GSIOC connection.
// Metrics can be used as the value of a prometheus CounterFunc; see the
// gsiocprom package.
type ConnectionMetrics struct {
	// ConnectAttemptCount indicates the number of address frames sent by Connect.
	ConnectAttemptCount atomic.Uint64
	// ConnectSuccessCount indicates the number of acknowledged address frames.
	ConnectSuccessCount atomic.Uint64

	// ImmediateCount indicates the number of completed immediate commands.
	ImmediateCount atomic.Uint64
	// BufferedCount indicates the number of completed buffered commands.
	BufferedCount atomic.Uint64
	// AckSentCount indicates the number of ACK bytes sent during immediate responses.
	AckSentCount atomic.Uint64
	// ResponseTimeoutCount indicates the number of immediate commands that hit the timeout.
	ResponseTimeoutCount atomic.Uint64

	// BytesSentCount indicates the number of bytes written to the transport.
	BytesSentCount atomic.Uint64
	// BytesRecvCount indicates the number of bytes read from the transport.
	BytesRecvCount atomic.Uint64

	// ScanCount indicates the number of completed bus scans.
	ScanCount atomic.Uint64
	// DeviceFoundCount indicates the number of devices reported by scans.
	DeviceFoundCount atomic.Uint64
}

func (m *ConnectionMetrics) incConnectAttemptCount() {
	m.ConnectAttemptCount.Add(1)
}

func (m *ConnectionMetrics) incConnectSuccessCount() {
	m.ConnectSuccessCount.Add(1)
}

func (m *ConnectionMetrics) incImmediateCount() {
	m.ImmediateCount.Add(1)
}

func (m *ConnectionMetrics) incBufferedCount() {
	m.BufferedCount.Add(1)
}

func (m *ConnectionMetrics) incAckSentCount() {
	m.AckSentCount.Add(1)
}

func (m *ConnectionMetrics) incResponseTimeoutCount() {
	m.ResponseTimeoutCount.Add(1)
}

func (m *ConnectionMetrics) addBytesSentCount(n int) {
	m.BytesSentCount.Add(uint64(n))
}

func (m *ConnectionMetrics) addBytesRecvCount(n int) {
	m.BytesRecvCount.Add(uint64(n))
}

func (m *ConnectionMetrics) incScanCount() {
	m.ScanCount.Add(1)
}

func (m *ConnectionMetrics) addDeviceFoundCount(n int) {
	m.DeviceFoundCount.Add(uint64(n))
}
