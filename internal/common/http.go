package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host part of the request's remote address. chi's RealIP middleware
// runs first and has already folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}
