package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ponte-cripto/notus-relay/internal/infra/notus"
	"github.com/ponte-cripto/notus-relay/pkg/apierrors"
	"github.com/ponte-cripto/notus-relay/pkg/validator"
	"github.com/tidwall/gjson"
)

// Provider 协议常量，不属于可配置项。
const (
	FactoryAddress = "0x0000000000400CdFef5E2714E63d8040b700BC24"
	Salt           = "0"
	ChainID        = 137
)

// 法币报价诊断请求的固定参数；individualId 故意无效，用于触发 provider 的错误分支。
const (
	quotePaymentMethod   = "PIX"
	quoteReceiveCurrency = "USDC"
	quoteFiatAmount      = 100
	quoteIndividualID    = "ind_teste_id_invalido"
)

// 日志中记录的上游响应体上限（字符）。
const loggedBodyLimit = 2048

// Upstream 抽象 provider 调用，*notus.Client 实现该接口。
type Upstream interface {
	Do(ctx context.Context, req notus.Request) (*notus.Response, error)
}

// Result 是需要原样回传给调用方的 provider 响应（含非 2xx）。
type Result struct {
	Status int
	Body   json.RawMessage
}

// Service 实现 validate → forward → relay 的八个操作。
type Service struct {
	upstream Upstream
	logger   *slog.Logger
}

// Option 定义可选参数。
type Option func(*Service)

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService 构造 relay Service。
func NewService(upstream Upstream, opts ...Option) (*Service, error) {
	if upstream == nil {
		return nil, errors.New("upstream is required")
	}
	s := &Service{upstream: upstream, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type registerBody struct {
	ExternallyOwnedAccount string `json:"externallyOwnedAccount"`
	Factory                string `json:"factory"`
	Salt                   string `json:"salt"`
}

// RegisterWallet 以固定 factory/salt 为 EOA 注册 smart wallet。
func (s *Service) RegisterWallet(ctx context.Context, eoa string) (*Result, error) {
	eoa, err := required("externallyOwnedAccount", eoa)
	if err != nil {
		return nil, err
	}
	return s.forward(ctx, notus.Request{
		Op:     "register_wallet",
		Method: http.MethodPost,
		Path:   "/wallets/register",
		Body:   registerBody{ExternallyOwnedAccount: eoa, Factory: FactoryAddress, Salt: Salt},
	})
}

// LookupWallet 按 EOA 查询 smart wallet；2xx 且 wallet 为 null 时返回 NOT_FOUND。
func (s *Service) LookupWallet(ctx context.Context, eoa string) (*Result, error) {
	eoa, err := required("externallyOwnedAccount", eoa)
	if err != nil {
		return nil, err
	}
	res, err := s.forward(ctx, notus.Request{
		Op:     "lookup_wallet",
		Method: http.MethodGet,
		Path:   "/wallets/address",
		Query: url.Values{
			"externallyOwnedAccount": {eoa},
			"factory":                {FactoryAddress},
			"salt":                   {Salt},
		},
	})
	if err != nil {
		return nil, err
	}
	if res.OK() {
		if wallet := gjson.GetBytes(res.Body, "wallet"); wallet.Exists() && wallet.Type == gjson.Null {
			return nil, apierrors.New(apierrors.CodeNotFound, "no smart wallet found for this externally owned account")
		}
	}
	return res, nil
}

// Portfolio 查询 smart wallet 的资产组合。
func (s *Service) Portfolio(ctx context.Context, walletAddress string) (*Result, error) {
	walletAddress, err := required("walletAddress", walletAddress)
	if err != nil {
		return nil, err
	}
	return s.forward(ctx, notus.Request{
		Op:     "portfolio",
		Method: http.MethodGet,
		Path:   "/wallets/" + url.PathEscape(walletAddress) + "/portfolio",
	})
}

// History 查询 smart wallet 的交易历史。
func (s *Service) History(ctx context.Context, walletAddress string) (*Result, error) {
	walletAddress, err := required("walletAddress", walletAddress)
	if err != nil {
		return nil, err
	}
	return s.forward(ctx, notus.Request{
		Op:     "history",
		Method: http.MethodGet,
		Path:   "/wallets/" + url.PathEscape(walletAddress) + "/history",
	})
}

// StartKYC 创建 KYC 会话，所有资料字段缺失时一次性列出。
func (s *Service) StartKYC(ctx context.Context, profile KYCProfile) (*Result, error) {
	if missing := profile.MissingFields(); len(missing) > 0 {
		return nil, apierrors.Missing(missing)
	}
	return s.forward(ctx, notus.Request{
		Op:     "kyc_start",
		Method: http.MethodPost,
		Path:   kycSessionsPath,
		Body:   profile,
	})
}

// KYCStatus 查询 KYC 会话状态。
func (s *Service) KYCStatus(ctx context.Context, sessionID string) (*Result, error) {
	sessionID, err := required("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	return s.forward(ctx, notus.Request{
		Op:     "kyc_status",
		Method: http.MethodGet,
		Path:   kycSessionsPath + "/" + url.PathEscape(sessionID),
	})
}

// ProcessKYC 推进 KYC 会话。
func (s *Service) ProcessKYC(ctx context.Context, sessionID string) (*Result, error) {
	sessionID, err := required("sessionId", sessionID)
	if err != nil {
		return nil, err
	}
	return s.forward(ctx, notus.Request{
		Op:     "kyc_process",
		Method: http.MethodPost,
		Path:   kycSessionsPath + "/" + url.PathEscape(sessionID) + "/process",
	})
}

type depositQuoteBody struct {
	PaymentMethodToSend        string `json:"paymentMethodToSend"`
	ReceiveCryptoCurrency      string `json:"receiveCryptoCurrency"`
	AmountToSendInFiatCurrency int    `json:"amountToSendInFiatCurrency"`
	IndividualID               string `json:"individualId"`
	WalletAddress              string `json:"walletAddress"`
	ChainID                    int    `json:"chainId"`
}

// DepositQuote 请求法币入金报价。这是诊断端点：individualId 固定为无效值，预期 provider 返回错误。
func (s *Service) DepositQuote(ctx context.Context, walletAddress string) (*Result, error) {
	walletAddress, err := required("walletAddress", walletAddress)
	if err != nil {
		return nil, err
	}
	res, err := s.forward(ctx, notus.Request{
		Op:     "deposit_quote",
		Method: http.MethodPost,
		Path:   "/fiat/deposit/quote",
		Body: depositQuoteBody{
			PaymentMethodToSend:        quotePaymentMethod,
			ReceiveCryptoCurrency:      quoteReceiveCurrency,
			AmountToSendInFiatCurrency: quoteFiatAmount,
			IndividualID:               quoteIndividualID,
			WalletAddress:              walletAddress,
			ChainID:                    ChainID,
		},
	})
	if err == nil && !res.OK() {
		s.logger.Info("deposit quote rejected by provider", slog.Int("status", res.Status))
	}
	return res, err
}

// forward 发送请求并把结果归类：传输失败、非 JSON 响应体或可原样回传的 Result。
func (s *Service) forward(ctx context.Context, req notus.Request) (*Result, error) {
	resp, err := s.upstream.Do(ctx, req)
	if err != nil {
		if errors.Is(err, notus.ErrNotConfigured) {
			s.logger.Error("relay upstream not configured", slog.String("op", req.Op))
			return nil, apierrors.New(apierrors.CodeNotConfigured, "relay upstream is not configured")
		}
		if errors.Is(err, notus.ErrBodyTooLarge) {
			s.logger.Error("relay upstream body too large", slog.String("op", req.Op), slog.Any("err", err))
			return nil, apierrors.UpstreamTooLarge()
		}
		s.logger.Error("relay upstream call failed", slog.String("op", req.Op), slog.Any("err", err))
		return nil, apierrors.Transport()
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		s.logger.Error("relay upstream returned non-JSON body",
			slog.String("op", req.Op),
			slog.Int("status", resp.Status),
			slog.String("body", apierrors.Truncate(string(resp.Body), loggedBodyLimit)))
		return nil, apierrors.UpstreamProtocol(string(resp.Body))
	}
	if !resp.OK() {
		s.logger.Warn("relay upstream returned error status", slog.String("op", req.Op), slog.Int("status", resp.Status))
	}
	return &Result{Status: resp.Status, Body: json.RawMessage(body)}, nil
}

// OK 判断结果是否为 2xx。
func (r *Result) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func required(name, value string) (string, error) {
	v, err := validator.RequireString(name, value)
	if err != nil {
		return "", apierrors.Required(name)
	}
	return v, nil
}
