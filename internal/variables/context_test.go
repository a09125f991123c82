package variables

import (
	"net/http/httptest"
	"testing"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		xff            string
		xri            string
		trustForwarded bool
		want           string
	}{
		{"remote addr", "10.0.0.1:1234", "", "", true, "10.0.0.1"},
		{"xff first hop", "10.0.0.1:1234", "203.0.113.5, 10.0.0.2", "", true, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:1234", "", "198.51.100.7", true, "198.51.100.7"},
		{"untrusted headers ignored", "10.0.0.1:1234", "203.0.113.5", "198.51.100.7", false, "10.0.0.1"},
		{"garbage xff falls through", "10.0.0.1:1234", "not-an-ip", "", true, "10.0.0.1"},
		{"ipv6", "[2001:db8::1]:443", "", "", true, "2001:db8::1"},
		{"unparseable", "pipe", "", "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := ExtractClientIP(req, tt.trustForwarded); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	req := httptest.NewRequest("POST", "/orders/1", nil)
	if GetFromRequest(req) != nil {
		t.Fatal("expected nil context on bare request")
	}

	vc := NewContext(req, "10.0.0.1")
	req = WithContext(req, vc)

	got := GetFromRequest(req)
	if got != vc {
		t.Fatal("expected stored context")
	}
	if got.Method != "POST" || got.Path != "/orders/1" || got.ClientIP != "10.0.0.1" {
		t.Errorf("unexpected context fields: %+v", got)
	}
	if got.StartTime.IsZero() {
		t.Error("expected start time to be set")
	}
}

func TestContextAccessors(t *testing.T) {
	vc := &Context{}
	if vc.UserID() != "" || vc.RouteName() != "" {
		t.Error("expected empty accessors")
	}

	vc.Identity = &Identity{UserID: "u-1"}
	vc.Route = &router.Route{Name: "order"}
	if vc.UserID() != "u-1" {
		t.Errorf("UserID() = %q", vc.UserID())
	}
	if vc.RouteName() != "order" {
		t.Errorf("RouteName() = %q", vc.RouteName())
	}
}
