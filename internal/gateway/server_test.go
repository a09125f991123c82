package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Gateway().Close() })
	admin := httptest.NewServer(s.adminHandler())
	t.Cleanup(admin.Close)
	return s, admin
}

func healthConfig(backendURL string) *config.Config {
	cfg := testConfig(backendURL, "")
	cfg.Registry.Type = "memory"
	cfg.Registry.Static = map[string][]config.StaticInstance{
		"cart": {{Address: "10.0.0.1", Port: 8080}},
	}
	cfg.Routes = []config.RouteConfig{
		{Name: "cart", PathPrefix: "/cart", Target: backendURL, Timeout: 2 * time.Second},
	}
	return cfg
}

func TestAdminHealth(t *testing.T) {
	_, admin := newTestServer(t, healthConfig("http://backend"))

	resp, err := http.Get(admin.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	checks := body["checks"].(map[string]interface{})
	breaker := checks["rate_limit_breaker"].(map[string]interface{})
	if breaker["state"] != "closed" {
		t.Errorf("expected closed breaker, got %v", breaker["state"])
	}
}

func TestAdminRoutes(t *testing.T) {
	_, admin := newTestServer(t, testConfig("http://backend", "http://auth"))

	resp, err := http.Get(admin.URL + "/routes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var routes []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		t.Fatal(err)
	}
	if len(routes) != 5 {
		t.Fatalf("expected 5 routes, got %d", len(routes))
	}
	order := routes[1]
	if order["name"] != "order" || order["requires_auth"] != true {
		t.Errorf("unexpected order route %v", order)
	}
	if order["timeout"] != "30s" {
		t.Errorf("expected default timeout, got %v", order["timeout"])
	}
	if roles := order["required_roles"].([]interface{}); len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("unexpected roles %v", roles)
	}
	if routes[3]["timeout"] != "50ms" {
		t.Errorf("expected route timeout, got %v", routes[3]["timeout"])
	}
}

func TestAdminHealthCacheInvalidate(t *testing.T) {
	b := newBackend(t, false)
	s, admin := newTestServer(t, healthConfig(b.URL))
	gw := httptest.NewServer(s.Gateway().Handler())
	defer gw.Close()

	if code := do(t, "GET", gw.URL+"/cart", "", nil).StatusCode; code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if _, ok := s.Gateway().HealthCache().Snapshot()["cart"]; !ok {
		t.Fatal("expected cached verdict for cart")
	}

	resp, err := http.Get(admin.URL + "/health-cache")
	if err != nil {
		t.Fatal(err)
	}
	var snapshot map[string]map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&snapshot)
	resp.Body.Close()
	if snapshot["cart"]["status"] != "healthy" {
		t.Errorf("unexpected snapshot %v", snapshot)
	}

	resp, err = http.Post(admin.URL+"/health-cache/invalidate/cart", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, ok := s.Gateway().HealthCache().Snapshot()["cart"]; ok {
		t.Error("expected cart verdict to be dropped")
	}

	do(t, "GET", gw.URL+"/cart", "", nil)
	resp, err = http.Post(admin.URL+"/health-cache/invalidate", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if n := len(s.Gateway().HealthCache().Snapshot()); n != 0 {
		t.Errorf("expected empty cache, got %d entries", n)
	}

	resp, err = http.Get(admin.URL + "/health-cache/invalidate")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET invalidate, got %d", resp.StatusCode)
	}
}

func TestAdminMetrics(t *testing.T) {
	b := newBackend(t, false)
	s, admin := newTestServer(t, testConfig(b.URL, "http://auth"))
	gw := httptest.NewServer(s.Gateway().Handler())
	defer gw.Close()

	do(t, "GET", gw.URL+"/cart", "", nil)
	do(t, "GET", gw.URL+"/nowhere", "", nil)

	if n := testutil.CollectAndCount(s.Gateway().Metrics().Registry(), "gateway_requests_total"); n != 2 {
		t.Errorf("expected 2 request series, got %d", n)
	}

	resp, err := http.Get(admin.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `gateway_requests_total{method="GET",route="unmatched",status="404"} 1`) {
		t.Errorf("metrics output missing unmatched series:\n%s", buf.String())
	}
}

func TestServerRunShutsDown(t *testing.T) {
	cfg := testConfig("http://backend", "")
	cfg.Listen.Address = "127.0.0.1:0"
	cfg.Listen.ShutdownTimeout = time.Second
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
