package relayapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ponte-cripto/notus-relay/internal/app/relay"
	"github.com/ponte-cripto/notus-relay/pkg/apierrors"
)

// HTTPHandler 实现 relay 的本地 HTTP/JSON 接口，每个路由对应一个 provider 操作。
type HTTPHandler struct {
	relay   Relay
	logger  *slog.Logger
	metrics *Metrics
}

// HandlerOption 定义可选参数。
type HandlerOption func(*HTTPHandler)

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *HTTPHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics 注入路由指标。
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *HTTPHandler) { h.metrics = m }
}

// NewHTTPHandler 构造 HTTP handler。
func NewHTTPHandler(r Relay, opts ...HandlerOption) *HTTPHandler {
	if r == nil {
		panic("relay is required")
	}
	h := &HTTPHandler{relay: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 将 handler 注册到 mux，旧页面使用的别名路由指向同一实现。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	h.handle(mux, http.MethodPost, h.handleRegisterWallet, "/api/wallet/create", "/api/create-smart-wallet")
	h.handle(mux, http.MethodGet, h.handleLookupWallet, "/api/get-wallet-by-eoa", "/api/wallet/get-by-eoa")
	h.handle(mux, http.MethodGet, h.handlePortfolio, "/api/get-portfolio", "/api/wallet/get-portfolio")
	h.handle(mux, http.MethodGet, h.handleHistory, "/api/wallet/get-history")
	h.handle(mux, http.MethodPost, h.handleStartKYC, "/api/kyc/start")
	h.handle(mux, http.MethodGet, h.handleKYCStatus, "/api/kyc/check-status")
	h.handle(mux, http.MethodPost, h.handleProcessKYC, "/api/kyc/process")
	h.handle(mux, http.MethodPost, h.handleDepositQuote, "/api/fiat/deposit-quote")
}

type relayFunc func(r *http.Request) (*relay.Result, error)

func (h *HTTPHandler) handle(mux *http.ServeMux, method string, fn relayFunc, routes ...string) {
	for _, route := range routes {
		route := route
		mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			status := h.serve(w, r, method, fn)
			h.metrics.observe(route, status, time.Since(start))
		})
	}
}

func (h *HTTPHandler) serve(w http.ResponseWriter, r *http.Request, method string, fn relayFunc) int {
	if r.Method != method {
		return writeAPIError(w, apierrors.New(apierrors.CodeMethodNotAllowed, method+" required"))
	}
	res, err := fn(r)
	if err != nil {
		return h.writeUnknownError(w, r, err)
	}
	return writeResult(w, res)
}

type eoaRequestBody struct {
	ExternallyOwnedAccount string `json:"externallyOwnedAccount"`
}

type walletRequestBody struct {
	WalletAddress string `json:"walletAddress"`
}

type sessionRequestBody struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error         string   `json:"error"`
	Details       string   `json:"details,omitempty"`
	ResponseText  string   `json:"responseText,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`
}

func (h *HTTPHandler) handleRegisterWallet(r *http.Request) (*relay.Result, error) {
	var body eoaRequestBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.relay.RegisterWallet(r.Context(), body.ExternallyOwnedAccount)
}

func (h *HTTPHandler) handleLookupWallet(r *http.Request) (*relay.Result, error) {
	return h.relay.LookupWallet(r.Context(), r.URL.Query().Get("externallyOwnedAccount"))
}

func (h *HTTPHandler) handlePortfolio(r *http.Request) (*relay.Result, error) {
	return h.relay.Portfolio(r.Context(), r.URL.Query().Get("walletAddress"))
}

func (h *HTTPHandler) handleHistory(r *http.Request) (*relay.Result, error) {
	return h.relay.History(r.Context(), r.URL.Query().Get("walletAddress"))
}

func (h *HTTPHandler) handleStartKYC(r *http.Request) (*relay.Result, error) {
	var profile relay.KYCProfile
	if err := decodeBody(r, &profile); err != nil {
		return nil, err
	}
	return h.relay.StartKYC(r.Context(), profile)
}

func (h *HTTPHandler) handleKYCStatus(r *http.Request) (*relay.Result, error) {
	return h.relay.KYCStatus(r.Context(), r.URL.Query().Get("sessionId"))
}

func (h *HTTPHandler) handleProcessKYC(r *http.Request) (*relay.Result, error) {
	var body sessionRequestBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.relay.ProcessKYC(r.Context(), body.SessionID)
}

func (h *HTTPHandler) handleDepositQuote(r *http.Request) (*relay.Result, error) {
	var body walletRequestBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.relay.DepositQuote(r.Context(), body.WalletAddress)
}

// decodeBody 解析 JSON 请求体；空 body 视为空对象，由字段校验报告缺失项。body 只能包含一个 JSON 值。
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	invalid := apierrors.New(apierrors.CodeInvalidArgument, "invalid JSON body")
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return invalid
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalid
	}
	return nil
}

func writeResult(w http.ResponseWriter, res *relay.Result) int {
	if res == nil {
		return writeAPIError(w, nil)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
	return res.Status
}

func writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
	return status
}

func (h *HTTPHandler) writeUnknownError(w http.ResponseWriter, r *http.Request, err error) int {
	if apiErr, ok := apierrors.FromError(err); ok {
		return writeAPIError(w, apiErr)
	}
	h.logger.Error("relay handler failed", slog.String("path", r.URL.Path), slog.String("request_id", RequestIDFromContext(r.Context())), slog.Any("err", err))
	return writeAPIError(w, nil)
}

func writeAPIError(w http.ResponseWriter, apiErr *apierrors.Error) int {
	if apiErr == nil {
		apiErr = apierrors.New(apierrors.Code("INTERNAL_ERROR"), "internal server error")
	}
	status := apierrors.HTTPStatus(apiErr.Code)
	if apierrors.RequiresRetryAfter(apiErr.Code) {
		if hint := apiErr.RetryAfterHint(); hint != "" {
			w.Header().Set("Retry-After", hint)
		}
	}
	resp := errorResponse{
		Error:         apiErr.Error(),
		Details:       apiErr.Details,
		ResponseText:  apiErr.ResponseText,
		MissingFields: apiErr.MissingFields,
	}
	return writeJSON(w, status, resp)
}
