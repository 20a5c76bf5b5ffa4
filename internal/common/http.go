package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller's address from RemoteAddr without the port.
// Forwarding headers are not read here; chi's RealIP middleware has already
// folded them into RemoteAddr for requests behind the trusted proxy.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}
