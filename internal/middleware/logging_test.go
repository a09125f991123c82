package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	original := logging.Global()
	core, obs := observer.New(zapcore.DebugLevel)
	logging.SetGlobal(zap.New(core))
	t.Cleanup(func() { logging.SetGlobal(original) })
	return obs
}

func testRoutes(t *testing.T) *router.Table {
	t.Helper()
	table, err := router.New([]config.RouteConfig{
		{Name: "catalog", PathPrefix: "/catalog", Target: "http://catalog:8080"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestLoggingEntry(t *testing.T) {
	obs := observeLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		variables.GetFromRequest(r).CorrelationID = "corr-1"
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	})

	final := NewChain(RequestContext(testRoutes(t), false), Logging()).Then(handler)
	req := httptest.NewRequest("POST", "/catalog/items", nil)
	rr := httptest.NewRecorder()
	final.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rr.Code)
	}

	entries := obs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 access log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "POST" || fields["path"] != "/catalog/items" {
		t.Errorf("unexpected method/path: %v %v", fields["method"], fields["path"])
	}
	if fields["status"] != int64(201) {
		t.Errorf("expected status 201 logged, got %v", fields["status"])
	}
	if fields["route"] != "catalog" {
		t.Errorf("expected route catalog, got %v", fields["route"])
	}
	if fields["correlation_id"] != "corr-1" {
		t.Errorf("expected correlation id set downstream, got %v", fields["correlation_id"])
	}
	if fields["body_bytes"] != int64(7) {
		t.Errorf("expected 7 body bytes, got %v", fields["body_bytes"])
	}
}

func TestLoggingOnPanic(t *testing.T) {
	obs := observeLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	final := NewChain(RequestContext(nil, false), Logging(), ErrorNormalizer()).Then(handler)

	rr := httptest.NewRecorder()
	final.ServeHTTP(rr, httptest.NewRequest("GET", "/x", nil))

	entries := obs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("expected access log for failed request, got %d", len(entries))
	}
	if entries[0].ContextMap()["status"] != int64(500) {
		t.Errorf("expected status 500 logged, got %v", entries[0].ContextMap()["status"])
	}
}

func TestMetricsRecordsRoute(t *testing.T) {
	c := metrics.NewCollector()
	final := NewChain(RequestContext(testRoutes(t), false), Metrics(c)).Then(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

	final.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/catalog/1", nil))
	final.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nothing", nil))

	if n := testutil.CollectAndCount(c.Registry(), "gateway_requests_total"); n != 2 {
		t.Errorf("expected 2 series, got %d", n)
	}
}

func TestRequestContext(t *testing.T) {
	var got *variables.Context
	final := RequestContext(testRoutes(t), true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = variables.GetFromRequest(r)
	}))

	req := httptest.NewRequest("GET", "/catalog/1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	final.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected request context")
	}
	if got.RouteName() != "catalog" {
		t.Errorf("expected catalog route, got %q", got.RouteName())
	}
	if got.ClientIP != "203.0.113.9" {
		t.Errorf("expected forwarded client ip, got %q", got.ClientIP)
	}
	if time.Since(got.StartTime) > time.Minute {
		t.Error("expected start time to be set")
	}
}

func TestResponseWriterCapture(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)

	if rw.HeaderWritten() {
		t.Error("header should not be written yet")
	}
	rw.Write([]byte("hello"))
	rw.WriteHeader(http.StatusTeapot) // ignored after implicit 200

	if rw.Status() != http.StatusOK {
		t.Errorf("expected 200, got %d", rw.Status())
	}
	if rw.BytesWritten() != 5 {
		t.Errorf("expected 5 bytes, got %d", rw.BytesWritten())
	}
	if newResponseWriter(rw) != rw {
		t.Error("expected nested wrap to reuse writer")
	}
	if rw.Unwrap() != rr {
		t.Error("Unwrap should return the underlying writer")
	}
}
