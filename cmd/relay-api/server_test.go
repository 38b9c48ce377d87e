package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ponte-cripto/notus-relay/internal/config"
	"github.com/ponte-cripto/notus-relay/internal/infra/notus/notustest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func testServer(t *testing.T, cfg config.Relay) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = time.Second
	}
	h, err := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), reg, reg)
	require.NoError(t, err)
	return h
}

func TestServerRelaysThroughMiddleware(t *testing.T) {
	provider := notustest.NewProvider(t, notustest.JSON(http.StatusOK, `{"portfolio":[]}`))
	h := testServer(t, config.Relay{BaseURL: provider.URL(), APIKey: "k"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/get-portfolio?walletAddress=0xdef", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"portfolio":[]}`, rr.Body.String())
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	require.Equal(t, "k", provider.LastCall().APIKey)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "relay_http_requests_total"))
	require.True(t, strings.Contains(rr.Body.String(), "relay_upstream_requests_total"))
}

func TestHealthzReportsConfiguration(t *testing.T) {
	h := testServer(t, config.Relay{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","upstreamConfigured":false}`, rr.Body.String())
}

func TestServerRateLimitCoversRelayRoutesOnly(t *testing.T) {
	h := testServer(t, config.Relay{RateLimit: 1, RateBurst: 1})
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/get-portfolio", nil))
	require.Equal(t, http.StatusBadRequest, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/get-portfolio", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "1", second.Header().Get("Retry-After"))

	for _, path := range []string{"/healthz", "/metrics", "/healthz", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestHealthServerStatus(t *testing.T) {
	resp, err := newHealthServer(config.Relay{}).Check(context.Background(), &healthpb.HealthCheckRequest{Service: relayServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = newHealthServer(config.Relay{BaseURL: "http://x", APIKey: "k"}).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
