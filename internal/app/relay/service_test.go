package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/ponte-cripto/notus-relay/internal/infra/notus"
	"github.com/ponte-cripto/notus-relay/internal/infra/notus/notustest"
	"github.com/ponte-cripto/notus-relay/pkg/apierrors"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, respond notustest.RespondFunc) (*Service, *notustest.Provider) {
	t.Helper()
	provider := notustest.NewProvider(t, respond)
	client := notus.NewClient(notus.Config{BaseURL: provider.URL(), APIKey: "test-key"})
	svc, err := NewService(client)
	require.NoError(t, err)
	return svc, provider
}

func validProfile() KYCProfile {
	return KYCProfile{
		FirstName:        "Ana",
		LastName:         "Souza",
		BirthDate:        "1990-03-15",
		Email:            "ana@example.com",
		DocumentID:       "12345678901",
		DocumentCategory: "DRIVERS_LICENSE",
		DocumentCountry:  "BRAZIL",
		Address:          "Rua A, 1",
		City:             "Florianópolis",
		State:            "SC",
		PostalCode:       "88010000",
	}
}

// operations 以统一签名覆盖全部八个操作，input 为空串表示缺失必填项。
func operations(svc *Service) map[string]func(ctx context.Context, input string) (*Result, error) {
	return map[string]func(context.Context, string) (*Result, error){
		"register":   svc.RegisterWallet,
		"lookup":     svc.LookupWallet,
		"portfolio":  svc.Portfolio,
		"history":    svc.History,
		"kycStatus":  svc.KYCStatus,
		"kycProcess": svc.ProcessKYC,
		"quote":      svc.DepositQuote,
		"kycStart": func(ctx context.Context, input string) (*Result, error) {
			p := validProfile()
			p.Email = input
			return svc.StartKYC(ctx, p)
		},
	}
}

func TestMissingInputNeverCallsUpstream(t *testing.T) {
	svc, provider := newTestService(t, nil)
	for name, op := range operations(svc) {
		_, err := op(context.Background(), "  ")
		apiErr, ok := apierrors.FromError(err)
		require.True(t, ok, name)
		require.Equal(t, apierrors.CodeInvalidArgument, apiErr.Code, name)
		require.NotEmpty(t, apiErr.Error(), name)
	}
	require.Equal(t, 0, provider.CallCount())
}

func TestSuccessAndFailurePassThrough(t *testing.T) {
	for _, tc := range []struct {
		status int
		body   string
	}{
		{http.StatusOK, `{"wallet":{"accountAbstraction":"0xdef"},"extra":[1,2]}`},
		{http.StatusCreated, `{"id":"x"}`},
		{http.StatusBadRequest, `{"message":"invalid","code":"E1"}`},
		{http.StatusUnauthorized, `{"message":"bad key"}`},
		{http.StatusInternalServerError, `[]`},
	} {
		svc, _ := newTestService(t, notustest.JSON(tc.status, tc.body))
		for name, op := range operations(svc) {
			res, err := op(context.Background(), "input-1")
			require.NoError(t, err, name)
			require.Equal(t, tc.status, res.Status, name)
			require.JSONEq(t, tc.body, string(res.Body), name)
		}
	}
}

func TestMalformedBodyAlwaysUpstreamProtocol(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		svc, _ := newTestService(t, notustest.JSON(status, "<html>oops</html>"))
		for name, op := range operations(svc) {
			_, err := op(context.Background(), "input-1")
			apiErr, ok := apierrors.FromError(err)
			require.True(t, ok, name)
			require.Equal(t, apierrors.CodeUpstreamProtocol, apiErr.Code, name)
			require.Equal(t, "<html>oops</html>", apiErr.ResponseText, name)
		}
	}
}

func TestEmptyBodyBecomesEmptyObject(t *testing.T) {
	svc, _ := newTestService(t, notustest.JSON(http.StatusOK, ""))
	res, err := svc.ProcessKYC(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "{}", string(res.Body))
}

func TestLookupWalletNullIsNotFound(t *testing.T) {
	svc, provider := newTestService(t, notustest.JSON(http.StatusOK, `{"wallet":null}`))
	_, err := svc.LookupWallet(context.Background(), "0xabc")
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, apierrors.CodeNotFound, apiErr.Code)
	require.NotEmpty(t, apiErr.Error())

	call := provider.LastCall()
	require.Equal(t, http.MethodGet, call.Method)
	require.Equal(t, "/wallets/address", call.Path)
	require.Equal(t, "externallyOwnedAccount=0xabc&factory="+FactoryAddress+"&salt=0", call.RawQuery)
}

func TestLookupWalletFound(t *testing.T) {
	body := `{"wallet":{"id":"w1","accountAbstraction":"0xdef","externallyOwnedAccount":"0xabc"}}`
	svc, _ := newTestService(t, notustest.JSON(http.StatusOK, body))
	res, err := svc.LookupWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.Status)
	require.JSONEq(t, body, string(res.Body))
}

func TestLookupWalletNullOnErrorStatusPassesThrough(t *testing.T) {
	svc, _ := newTestService(t, notustest.JSON(http.StatusBadRequest, `{"wallet":null,"message":"x"}`))
	res, err := svc.LookupWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.Status)
}

func TestRegisterWalletRequestShape(t *testing.T) {
	svc, provider := newTestService(t, notustest.JSON(http.StatusOK, `{"wallet":{"accountAbstraction":"0xdef"}}`))
	_, err := svc.RegisterWallet(context.Background(), "0xabc")
	require.NoError(t, err)

	call := provider.LastCall()
	require.Equal(t, http.MethodPost, call.Method)
	require.Equal(t, "/wallets/register", call.Path)
	require.Equal(t, "test-key", call.APIKey)
	require.JSONEq(t, `{"externallyOwnedAccount":"0xabc","factory":"`+FactoryAddress+`","salt":"0"}`, string(call.Body))
}

func TestPathParametersAreEscaped(t *testing.T) {
	svc, provider := newTestService(t, nil)
	_, err := svc.KYCStatus(context.Background(), "a/b")
	require.NoError(t, err)
	require.Equal(t, kycSessionsPath+"/a%2Fb", provider.LastCall().Path)

	_, err = svc.ProcessKYC(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, provider.LastCall().Method)
	require.Equal(t, kycSessionsPath+"/sess-1/process", provider.LastCall().Path)

	_, err = svc.History(context.Background(), "0xdef")
	require.NoError(t, err)
	require.Equal(t, "/wallets/0xdef/history", provider.LastCall().Path)
}

func TestStartKYCMissingEmail(t *testing.T) {
	svc, provider := newTestService(t, nil)
	p := validProfile()
	p.Email = ""
	_, err := svc.StartKYC(context.Background(), p)
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, []string{"email"}, apiErr.MissingFields)
	require.Equal(t, 0, provider.CallCount())
}

func TestStartKYCForwardsProfile(t *testing.T) {
	svc, provider := newTestService(t, notustest.JSON(http.StatusOK, `{"session":{"id":"s1"}}`))
	p := validProfile()
	p.LivenessRequired = true
	_, err := svc.StartKYC(context.Background(), p)
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(provider.LastCall().Body, &sent))
	require.Equal(t, "ana@example.com", sent["email"])
	require.Equal(t, true, sent["livenessRequired"])
	require.Equal(t, kycSessionsPath, provider.LastCall().Path)
}

func TestDepositQuoteUsesDiagnosticIdentity(t *testing.T) {
	svc, provider := newTestService(t, notustest.JSON(http.StatusBadRequest, `{"message":"individual not found"}`))
	res, err := svc.DepositQuote(context.Background(), "0xdef")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.Status)
	require.JSONEq(t, `{
		"paymentMethodToSend":"PIX",
		"receiveCryptoCurrency":"USDC",
		"amountToSendInFiatCurrency":100,
		"individualId":"ind_teste_id_invalido",
		"walletAddress":"0xdef",
		"chainId":137
	}`, string(provider.LastCall().Body))
}

func TestNotConfiguredFailsWithoutCall(t *testing.T) {
	provider := notustest.NewProvider(t, nil)
	svc, err := NewService(notus.NewClient(notus.Config{BaseURL: provider.URL()}))
	require.NoError(t, err)

	_, err = svc.Portfolio(context.Background(), "0xdef")
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, apierrors.CodeNotConfigured, apiErr.Code)
	require.Equal(t, 0, provider.CallCount())
}

type failingUpstream struct{ err error }

func (f failingUpstream) Do(context.Context, notus.Request) (*notus.Response, error) {
	return nil, f.err
}

func TestTransportFailureIsGeneric(t *testing.T) {
	svc, err := NewService(failingUpstream{err: &notus.TransportError{Op: "portfolio", Err: context.DeadlineExceeded}})
	require.NoError(t, err)
	_, err = svc.Portfolio(context.Background(), "0xdef")
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, apierrors.CodeTransport, apiErr.Code)
	require.Equal(t, "internal server error", apiErr.Error())
}

func TestNewServiceRequiresUpstream(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestOversizedBodyIsNotReportedAsMalformed(t *testing.T) {
	provider := notustest.NewProvider(t, notustest.JSON(http.StatusOK, `{"history":["`+strings.Repeat("x", 64)+`"]}`))
	svc, err := NewService(notus.NewClient(notus.Config{BaseURL: provider.URL(), APIKey: "test-key", MaxBodyBytes: 32}))
	require.NoError(t, err)

	_, err = svc.History(context.Background(), "0xdef")
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, apierrors.CodeUpstreamProtocol, apiErr.Code)
	require.Equal(t, "response body too large", apiErr.Details)
	require.Empty(t, apiErr.ResponseText)
}

func TestMalformedBodyLogIsCapped(t *testing.T) {
	var buf bytes.Buffer
	provider := notustest.NewProvider(t, notustest.JSON(http.StatusOK, strings.Repeat("<p>", 10000)))
	svc, err := NewService(notus.NewClient(notus.Config{BaseURL: provider.URL(), APIKey: "test-key"}),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)

	_, err = svc.Portfolio(context.Background(), "0xdef")
	require.Error(t, err)
	require.Contains(t, buf.String(), "non-JSON body")
	require.Less(t, buf.Len(), 8*1024)
}

func TestRequiredUsesFieldMessage(t *testing.T) {
	_, err := required("walletAddress", "  ")
	apiErr, ok := apierrors.FromError(err)
	require.True(t, ok)
	require.Equal(t, apierrors.CodeInvalidArgument, apiErr.Code)
	require.Equal(t, "walletAddress is required", apiErr.Error())

	v, err := required("walletAddress", " 0xdef ")
	require.NoError(t, err)
	require.Equal(t, "0xdef", v)
}
