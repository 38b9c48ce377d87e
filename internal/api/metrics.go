package relayapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 暴露 http_requests_total / http_request_duration_ms / http_rate_limited_total。
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	rateLimited prometheus.Counter
}

// NewMetrics 在注册器中注册路由指标，reg 为空则注册到默认注册器。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of relay requests by route and status",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "End-to-end relay request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the inbound rate limiter",
		}),
	}
	reg.MustRegister(m.requests, m.latency, m.rateLimited)
	return m
}

func (m *Metrics) observe(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) incRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
