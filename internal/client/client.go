// Package client 是本地 relay 接口的 Go 客户端，供 walletctl 使用。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ponte-cripto/notus-relay/internal/app/relay"
	"github.com/ponte-cripto/notus-relay/internal/app/session"
)

const maxBodyBytes = 8 << 20

// Object 是 relay 返回的任意 JSON 对象。
type Object = map[string]any

// Error 描述 relay 的非 2xx 响应。
type Error struct {
	Status  int
	Message string
	Body    []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

// Config 定义客户端参数。
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 调用本地 relay。
type Client struct {
	baseURL string
	http    *http.Client
}

// New 构造客户端，Timeout 默认 30s。
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client: relay base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, http: httpClient}, nil
}

type walletEnvelope struct {
	Wallet *session.SmartWallet `json:"wallet"`
}

// RegisterWallet 为 EOA 注册智能钱包。
func (c *Client) RegisterWallet(ctx context.Context, eoa string) (*session.SmartWallet, Object, error) {
	return c.wallet(ctx, http.MethodPost, "/api/wallet/create", nil,
		map[string]string{"externallyOwnedAccount": eoa}, "failed to create the smart wallet")
}

// LookupWallet 按 EOA 查询智能钱包。
func (c *Client) LookupWallet(ctx context.Context, eoa string) (*session.SmartWallet, Object, error) {
	return c.wallet(ctx, http.MethodGet, "/api/wallet/get-by-eoa",
		url.Values{"externallyOwnedAccount": {eoa}}, nil, "failed to look up the smart wallet")
}

func (c *Client) wallet(ctx context.Context, method, path string, query url.Values, body any, fallback string) (*session.SmartWallet, Object, error) {
	raw, err := c.do(ctx, method, path, query, body, fallback)
	if err != nil {
		return nil, nil, err
	}
	var env walletEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("client: decode wallet: %w", err)
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, nil, err
	}
	return env.Wallet, obj, nil
}

// Portfolio 查询钱包资产。
func (c *Client) Portfolio(ctx context.Context, wallet string) (Object, error) {
	return c.object(ctx, http.MethodGet, "/api/wallet/get-portfolio",
		url.Values{"walletAddress": {wallet}}, nil, "failed to fetch the portfolio")
}

// History 查询钱包历史。
func (c *Client) History(ctx context.Context, wallet string) (Object, error) {
	return c.object(ctx, http.MethodGet, "/api/wallet/get-history",
		url.Values{"walletAddress": {wallet}}, nil, "failed to fetch the wallet history")
}

// StartKYC 创建 KYC 会话。
func (c *Client) StartKYC(ctx context.Context, profile relay.KYCProfile) (Object, error) {
	return c.object(ctx, http.MethodPost, "/api/kyc/start", nil, profile, "failed to start the kyc session")
}

// KYCStatus 查询 KYC 会话状态。
func (c *Client) KYCStatus(ctx context.Context, sessionID string) (Object, error) {
	return c.object(ctx, http.MethodGet, "/api/kyc/check-status",
		url.Values{"sessionId": {sessionID}}, nil, "failed to check the kyc session status")
}

// ProcessKYC 提交 KYC 会话。
func (c *Client) ProcessKYC(ctx context.Context, sessionID string) (Object, error) {
	return c.object(ctx, http.MethodPost, "/api/kyc/process", nil,
		map[string]string{"sessionId": sessionID}, "failed to process the kyc session")
}

// DepositQuote 请求法币入金报价。
func (c *Client) DepositQuote(ctx context.Context, wallet string) (Object, error) {
	return c.object(ctx, http.MethodPost, "/api/fiat/deposit-quote", nil,
		map[string]string{"walletAddress": wallet}, "failed to request the deposit quote")
}

func (c *Client) object(ctx context.Context, method, path string, query url.Values, body any, fallback string) (Object, error) {
	raw, err := c.do(ctx, method, path, query, body, fallback)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, fallback string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(raw, fallback), Body: raw}
	}
	return raw, nil
}

// errorMessage 依次取 error、message、原始 JSON，最后才用 fallback。
func errorMessage(raw []byte, fallback string) string {
	trimmed := bytes.TrimSpace(raw)
	var fields struct {
		Error   any `json:"error"`
		Message any `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &fields); err == nil {
		if s := messageString(fields.Error); s != "" {
			return s
		}
		if s := messageString(fields.Message); s != "" {
			return s
		}
	}
	if len(trimmed) > 0 {
		return string(trimmed)
	}
	return fallback
}

func messageString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func decodeObject(raw []byte) (Object, error) {
	obj := Object{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	return obj, nil
}
