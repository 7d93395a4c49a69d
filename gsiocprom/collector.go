// Package gsiocprom exports gsioc connection metrics to Prometheus.
package gsiocprom

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-gsioc/gsioc"
)

const namespace = "gsioc"

// Collector reads the counters of a gsioc.ConnectionMetrics at scrape time.
type Collector struct {
	counters []prometheus.Collector
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector for m. constLabels are attached to every
// series, typically the serial port name.
func NewCollector(m *gsioc.ConnectionMetrics, constLabels prometheus.Labels) *Collector {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 {
			return float64(v.Load())
		})
	}

	return &Collector{
		counters: []prometheus.Collector{
			counter("connect_attempts_total", "Address frames sent.", &m.ConnectAttemptCount),
			counter("connect_success_total", "Address frames acknowledged by a device.", &m.ConnectSuccessCount),
			counter("immediate_commands_total", "Completed immediate commands.", &m.ImmediateCount),
			counter("buffered_commands_total", "Completed buffered commands.", &m.BufferedCount),
			counter("acks_sent_total", "ACK bytes sent while collecting immediate responses.", &m.AckSentCount),
			counter("response_timeouts_total", "Immediate commands that exceeded the response timeout.", &m.ResponseTimeoutCount),
			counter("bytes_sent_total", "Bytes written to the transport.", &m.BytesSentCount),
			counter("bytes_received_total", "Bytes read from the transport.", &m.BytesRecvCount),
			counter("scans_total", "Completed bus scans.", &m.ScanCount),
			counter("devices_found_total", "Devices reported by bus scans.", &m.DeviceFoundCount),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, counter := range c.counters {
		counter.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, counter := range c.counters {
		counter.Collect(ch)
	}
}

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler returns the HTTP handler exposing reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
