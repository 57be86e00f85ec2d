// Package metrics exposes backend counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for exchanges.
const (
	OutcomeReply = "reply"
	OutcomeMedia = "media"
	OutcomeGated = "gated"
	OutcomeError = "error"
)

// Metrics groups the collectors of one backend instance on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	exchanges    *prometheus.CounterVec
	historyPages prometheus.Counter
	uploads      prometheus.Counter
	uploadBytes  prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ztavern",
			Name:      "exchanges_total",
			Help:      "Chat exchanges by endpoint tier and outcome.",
		}, []string{"tier", "outcome"}),
		historyPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ztavern",
			Name:      "history_pages_total",
			Help:      "History pages served.",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ztavern",
			Name:      "media_uploads_total",
			Help:      "Voice artifacts stored.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ztavern",
			Name:      "media_upload_bytes_total",
			Help:      "Bytes of voice artifacts stored.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.exchanges,
		m.historyPages,
		m.uploads,
		m.uploadBytes,
	)
	return m
}

// Exchange counts one exchange. Nil receivers are no-ops.
func (m *Metrics) Exchange(tier, outcome string) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(tier, outcome).Inc()
}

// HistoryPage counts one served history page.
func (m *Metrics) HistoryPage() {
	if m == nil {
		return
	}
	m.historyPages.Inc()
}

// Upload counts one stored artifact of size bytes.
func (m *Metrics) Upload(size int) {
	if m == nil {
		return
	}
	m.uploads.Inc()
	m.uploadBytes.Add(float64(size))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
