// Package observability holds the Prometheus instruments exported by `bob serve`.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

// Metrics groups all instruments; each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	Replies             *prometheus.CounterVec
	ReplyLatency        *prometheus.HistogramVec
	HTTPRequests        *prometheus.CounterVec
	DiscussionsCreated  prometheus.Counter
	AttachmentsRejected *prometheus.CounterVec
	WSConnections       prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Replies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Reply generations by backend and outcome.",
		}, []string{"backend", "outcome"}),
		ReplyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Time spent generating a reply.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"backend"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		DiscussionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discussions_created_total",
			Help:      "Discussions created through the API.",
		}),
		AttachmentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_rejected_total",
			Help:      "Attachments that could not be extracted, by file type.",
		}, []string{"type"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open discussion websocket connections.",
		}),
	}
}

// ObserveReply records one reply result; pass it to reply.WithObserver.
func (m *Metrics) ObserveReply(res reply.Result) {
	m.Replies.WithLabelValues(res.Backend, string(res.Outcome)).Inc()
	m.ReplyLatency.WithLabelValues(res.Backend).Observe(res.Elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, code int, _ time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
