package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	relayapi "github.com/ponte-cripto/notus-relay/internal/api"
	"github.com/ponte-cripto/notus-relay/internal/app/relay"
	"github.com/ponte-cripto/notus-relay/internal/config"
	"github.com/ponte-cripto/notus-relay/internal/infra/notus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newServer 组装 relay：provider client、service、路由、中间件与 /healthz、/metrics。
func newServer(cfg config.Relay, logger *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (http.Handler, error) {
	upstream := notus.NewClient(notus.Config{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.UpstreamTimeout,
		MaxBodyBytes: cfg.UpstreamMaxBodyBytes,
		Logger:       logger,
		Metrics:      notus.NewMetrics(reg),
	})
	svc, err := relay.NewService(upstream, relay.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	metrics := relayapi.NewMetrics(reg)
	routes := http.NewServeMux()
	relayapi.NewHTTPHandler(svc, relayapi.WithLogger(logger), relayapi.WithMetrics(metrics)).Register(routes)
	limiter := relayapi.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, metrics)

	// 限流只作用于 relay 路由，/healthz 与 /metrics 不受影响。
	mux := http.NewServeMux()
	mux.Handle("/", limiter.Middleware(routes))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":             "ok",
			"upstreamConfigured": upstream.Configured(),
		})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return relayapi.RequestID(relayapi.AccessLog(logger)(mux)), nil
}
