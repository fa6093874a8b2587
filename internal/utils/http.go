package utils

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP resolves the best-effort real client address from a request.
// Forwarded headers are consulted first (left-most X-Forwarded-For entry),
// then CDN headers, then the socket address. The result is passed through
// opaquely on session events for the monitoring integration.
func RealClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
