package notus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIKeyHeader 是 provider 要求的鉴权头。
const APIKeyHeader = "x-api-key"

// DefaultMaxBodyBytes 是单次响应体读取上限的默认值。
const DefaultMaxBodyBytes = 32 << 20

// ErrNotConfigured 表示 base URL 或 API key 缺失，此时不发起任何上游调用。
var ErrNotConfigured = errors.New("notus upstream is not configured")

// ErrBodyTooLarge 表示响应体超过 MaxBodyBytes，不会被截断后当作正常响应。
var ErrBodyTooLarge = errors.New("notus response body too large")

// TransportError 表示请求未能拿到 provider 的响应（连接失败、超时、取消）。
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notus %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config 控制上游地址、鉴权、超时与响应体上限（MaxBodyBytes<=0 时使用 DefaultMaxBodyBytes）。
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxBodyBytes int64
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Request 描述一次发往 provider 的调用。
type Request struct {
	// Op 是逻辑操作名，仅用于日志与指标。
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response 保存 provider 的状态码与原始响应体。
type Response struct {
	Status int
	Body   []byte
}

// OK 判断状态码是否为 2xx。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Client 封装所有 provider HTTP 调用。
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// NewClient 构造 Client；配置缺失时仍可构造，但每次调用都会返回 ErrNotConfigured。
func NewClient(cfg Config) *Client {
	normalized := cfg
	if normalized.Timeout <= 0 {
		normalized.Timeout = 15 * time.Second
	}
	if normalized.MaxBodyBytes <= 0 {
		normalized.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if normalized.Logger == nil {
		normalized.Logger = slog.Default()
	}
	httpClient := normalized.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:        normalized,
		baseURL:    strings.TrimRight(strings.TrimSpace(normalized.BaseURL), "/"),
		httpClient: httpClient,
		logger:     normalized.Logger,
		metrics:    normalized.Metrics,
	}
}

// Configured 报告 base URL 与 API key 是否都已提供。
func (c *Client) Configured() bool {
	return c.baseURL != "" && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Do 发送请求并返回 provider 的原始响应；非 2xx 不视为错误。
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	op := req.Op
	if op == "" {
		op = req.Method + " " + req.Path
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	httpReq, err := c.newRequest(callCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observe(op, outcomeTransport, time.Since(start))
		c.logger.Error("notus request failed", slog.String("op", op), slog.String("path", req.Path), slog.Any("err", err))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		c.metrics.observe(op, outcomeTransport, time.Since(start))
		c.logger.Error("notus response read failed", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.Any("err", err))
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		c.metrics.observe(op, outcomeTransport, time.Since(start))
		c.logger.Error("notus response body too large", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.Int64("limit", c.cfg.MaxBodyBytes))
		return nil, &TransportError{Op: op, Err: ErrBodyTooLarge}
	}

	out := &Response{Status: resp.StatusCode, Body: body}
	outcome := outcomeSuccess
	if !out.OK() {
		outcome = outcomeUpstreamError
	}
	c.metrics.observe(op, outcome, time.Since(start))
	c.logger.Debug("notus response", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.Int("bytes", len(body)))
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set(APIKeyHeader, c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}
