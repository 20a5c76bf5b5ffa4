package security

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// APIPolicy is the Content-Security-Policy for JSON endpoints.
const APIPolicy = "default-src 'none'; frame-ancestors 'none'"

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// ContentSecurityPolicy defaults to APIPolicy.
	ContentSecurityPolicy string
}

// Middleware attaches standard security headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		policy := h.ContentSecurityPolicy
		if policy == "" {
			policy = APIPolicy
		}
		headers.Set("Content-Security-Policy", policy)
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			value := "max-age=" + strconv.Itoa(maxAge)
			if h.HSTSIncludeSubdomains {
				value += "; includeSubDomains"
			}
			headers.Set("Strict-Transport-Security", value)
		}
		next.ServeHTTP(w, r)
	})
}

// CheckoutPolicy allows the hosted checkout page to load the gateway's
// library, frame its form and post to it. Unparsable base URLs are skipped.
func CheckoutPolicy(gatewayBaseURLs ...string) string {
	seen := map[string]bool{}
	var origins []string
	for _, raw := range gatewayBaseURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if !seen[origin] {
			seen[origin] = true
			origins = append(origins, origin)
		}
	}
	sources := strings.TrimSpace("'self' " + strings.Join(origins, " "))
	return strings.Join([]string{
		"default-src 'self'",
		"script-src " + sources + " 'unsafe-inline'",
		"style-src " + sources + " 'unsafe-inline'",
		"frame-src " + sources,
		"form-action " + sources,
		"frame-ancestors 'none'",
	}, "; ")
}
