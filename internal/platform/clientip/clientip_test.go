package clientip

import (
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{"forwarded for first hop", "10.0.0.1, 10.0.0.2", "", "1.2.3.4:5555", "10.0.0.1"},
		{"real ip", "", "10.0.0.9", "1.2.3.4:5555", "10.0.0.9"},
		{"remote addr", "", "", "1.2.3.4:5555", "1.2.3.4"},
		{"remote without port", "", "", "1.2.3.4", "1.2.3.4"},
		{"nothing", "", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := FromRequest(r); got != tt.want {
				t.Errorf("FromRequest = %q, want %q", got, tt.want)
			}
		})
	}
}
