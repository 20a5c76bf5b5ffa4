package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	middleware := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	headers := rr.Result().Header
	if got := headers.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	if got := headers.Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("unexpected hsts header %q", got)
	}
	if got := headers.Get("Content-Security-Policy"); got != APIPolicy {
		t.Fatalf("expected api policy, got %q", got)
	}
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	middleware := Headers{Enable: false, EnableHSTS: true}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rr.Header().Get("X-Content-Type-Options") != "" {
		t.Fatal("expected no security headers when disabled")
	}
}

func TestCheckoutPolicy(t *testing.T) {
	policy := CheckoutPolicy("https://sandbox.gateway.example/pgui", "https://sandbox.gateway.example", "::bad::", "https://secure.gateway.example")
	if !strings.Contains(policy, "form-action 'self' https://sandbox.gateway.example https://secure.gateway.example") {
		t.Fatalf("gateway origins missing from form-action: %q", policy)
	}
	if strings.Count(policy, "https://sandbox.gateway.example") != 4 {
		t.Fatalf("expected sandbox origin once per directive: %q", policy)
	}
	if !strings.Contains(policy, "frame-ancestors 'none'") {
		t.Fatalf("expected frame-ancestors directive: %q", policy)
	}
}
