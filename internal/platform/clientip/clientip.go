// Package clientip resolves the client address of an HTTP request.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns the first X-Forwarded-For hop, then X-Real-IP, then the RemoteAddr host.
// Returns "unknown" when none is usable.
func FromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
