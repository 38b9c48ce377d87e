package notus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess       = "success"
	outcomeUpstreamError = "upstream_error"
	outcomeTransport     = "transport_error"
)

// Metrics 暴露 upstream_requests_total / upstream_latency_ms。
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics 在注册器中注册上游调用指标，reg 为空则注册到默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of provider calls by operation and outcome",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "upstream",
			Name:      "latency_ms",
			Help:      "Latency of provider calls in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}, []string{"op"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
}
