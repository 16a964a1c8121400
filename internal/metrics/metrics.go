// Package metrics exposes Prometheus collectors for the POS backend. All
// methods are safe on a nil *Metrics so callers need no guard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	sales         *prometheus.CounterVec
	salesAmount   *prometheus.CounterVec
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	outboxPending prometheus.Gauge
	replays       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelpos",
			Name:      "sales_total",
			Help:      "Checkout outcomes by status.",
		}, []string{"status"}),
		salesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelpos",
			Name:      "sales_amount_uah_total",
			Help:      "Sum of sale totals in the base currency by status.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelpos",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jewelpos",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jewelpos",
			Name:      "outbox_pending",
			Help:      "Sales waiting in the outbox for replay.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jewelpos",
			Name:      "outbox_replays_total",
			Help:      "Outbox replay attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sales,
		m.salesAmount,
		m.requests,
		m.duration,
		m.outboxPending,
		m.replays,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSale(status string, total float64) {
	if m == nil {
		return
	}
	m.sales.WithLabelValues(status).Inc()
	if total > 0 {
		m.salesAmount.WithLabelValues(status).Add(total)
	}
}

func (m *Metrics) ObserveRequest(route string, method string, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, code).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReplay(result string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
}

func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}
