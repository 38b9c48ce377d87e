package notustest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Call 记录 stub provider 收到的一次请求。
type Call struct {
	Method   string
	Path     string
	RawQuery string
	APIKey   string
	Body     []byte
}

// RespondFunc 根据请求决定返回的状态码与原始响应体。
type RespondFunc func(Call) (status int, body string)

// JSON 返回固定状态码与响应体。
func JSON(status int, body string) RespondFunc {
	return func(Call) (int, string) { return status, body }
}

// Provider 是基于 httptest 的 provider 替身，用于演练/单测。
type Provider struct {
	server  *httptest.Server
	respond RespondFunc

	mu    sync.Mutex
	calls []Call
}

// NewProvider 启动 stub provider，测试结束时自动关闭。
func NewProvider(t testing.TB, respond RespondFunc) *Provider {
	t.Helper()
	if respond == nil {
		respond = JSON(http.StatusOK, `{}`)
	}
	p := &Provider{respond: respond}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

// URL 返回 stub 的 base URL。
func (p *Provider) URL() string { return p.server.URL }

// CallCount 返回已收到的请求数。
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// LastCall 返回最近一次请求，没有请求时返回零值。
func (p *Provider) LastCall() Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return Call{}
	}
	return p.calls[len(p.calls)-1]
}

func (p *Provider) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := Call{
		Method:   r.Method,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		APIKey:   r.Header.Get("x-api-key"),
		Body:     body,
	}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()

	status, payload := p.respond(call)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, payload)
}
