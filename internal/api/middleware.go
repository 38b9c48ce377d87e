package relayapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ponte-cripto/notus-relay/pkg/apierrors"
	"golang.org/x/time/rate"
)

// RequestIDHeader 用于关联客户端请求与服务端日志。
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext 返回当前请求的 request id。
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// RequestID 沿用调用方提供的 X-Request-ID，缺失时生成新的 UUID。
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// AccessLog 记录每个请求的方法、路径、状态码与耗时。
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("relay request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("latency", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// RateLimiter 是可选的入站限流器，limit<=0 表示关闭。
type RateLimiter struct {
	burst   int
	metrics *Metrics
	limiter atomic.Pointer[rate.Limiter]
}

// NewRateLimiter 构造入站限流器。
func NewRateLimiter(limit float64, burst int, metrics *Metrics) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &RateLimiter{burst: burst, metrics: metrics}
	l.Update(limit)
	return l
}

// Update 热更新速率限制。
func (l *RateLimiter) Update(limit float64) {
	if limit <= 0 {
		l.limiter.Store(nil)
		return
	}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), l.burst))
}

// Middleware 超出速率时返回 429 与 Retry-After。
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter := l.limiter.Load(); limiter != nil && !limiter.Allow() {
			l.metrics.incRateLimited()
			writeAPIError(w, apierrors.New(apierrors.CodeRetryLater, "too many requests").WithRetryAfter(time.Second))
			return
		}
		next.ServeHTTP(w, r)
	})
}
