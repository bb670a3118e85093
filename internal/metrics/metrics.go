// Package metrics exposes Prometheus counters for the SOCKS5 server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "socks5d"

// Traffic directions.
const (
	Upload   = "upload"
	Download = "download"
)

// Metrics holds the server's collectors. All methods are safe on a nil
// *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	active    prometheus.Gauge
	sessions  *prometheus.CounterVec
	handshake *prometheus.CounterVec
	replies   *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	datagrams *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// New registers the collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Client connections currently being served.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Parsed requests by command.",
		}, []string{"command"}),
		handshake: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Sessions that ended before a request was parsed.",
		}, []string{"reason"}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Reply frames sent by status.",
		}, []string{"status"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Payload bytes relayed by direction.",
		}, []string{"direction"}),
		datagrams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_datagrams_total",
			Help:      "UDP datagrams relayed by direction.",
		}, []string{"direction"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_dropped_total",
			Help:      "UDP datagrams dropped by reason.",
		}, []string{"reason"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) Request(command string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(command).Inc()
}

func (m *Metrics) HandshakeFailed(reason string) {
	if m == nil {
		return
	}
	m.handshake.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reply(status string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(status).Inc()
}

func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) Datagram(direction string, size int) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(direction).Inc()
	m.AddBytes(direction, int64(size))
}

func (m *Metrics) DatagramDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
