package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ponte-cripto/notus-relay/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadRelay(config.DefaultEnvFiles...)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.UpstreamConfigured() {
		logger.Warn("NOTUS_API_BASE_URL or NOTUS_API_KEY is missing, relay routes will fail with 500")
	}

	handler, err := newServer(cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server closed unexpectedly", "error", err)
			stop()
		}
	}()

	// gRPC health 仅在配置了地址时启动，状态反映上游是否已配置。
	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Error("failed to listen for gRPC health", "error", err)
			os.Exit(1)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, newHealthServer(cfg))
		go func() {
			logger.Info("gRPC health server listening", "addr", cfg.GRPCHealthAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server closed unexpectedly", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down servers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
}

// relayServiceName 是 gRPC health 中 relay 的服务名。
const relayServiceName = "notus.relay"

func newHealthServer(cfg config.Relay) *health.Server {
	srv := health.NewServer()
	status := healthpb.HealthCheckResponse_SERVING
	if !cfg.UpstreamConfigured() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	srv.SetServingStatus("", status)
	srv.SetServingStatus(relayServiceName, status)
	return srv
}
