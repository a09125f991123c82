package timeout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

func withRoute(r *http.Request, route *router.Route) *http.Request {
	vc := variables.NewContext(r, "10.0.0.1")
	vc.Route = route
	return variables.WithContext(r, vc)
}

func TestTimeoutFires(t *testing.T) {
	m := metrics.NewCollector()
	stage := New(50*time.Millisecond, m)

	aborted := make(chan struct{})
	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	}))

	rec := httptest.NewRecorder()
	req := withRoute(httptest.NewRequest("GET", "/order/1", nil), &router.Route{Name: "order"})
	start := time.Now()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "1" {
		t.Errorf("expected Retry-After 1, got %q", ra)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != float64(504) {
		t.Errorf("unexpected body: %v", body)
	}

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("downstream context was not cancelled")
	}

	if n := testutil.CollectAndCount(m.Registry(), "gateway_upstream_timeouts_total"); n != 1 {
		t.Errorf("expected 1 timeout series, got %d", n)
	}
}

func TestLateWriteDiscarded(t *testing.T) {
	stage := New(30*time.Millisecond, nil)

	writeErr := make(chan error, 1)
	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("X-Late", "1")
		_, err := w.Write([]byte("late body"))
		writeErr <- err
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	select {
	case err := <-writeErr:
		if !errors.Is(err, http.ErrHandlerTimeout) {
			t.Errorf("expected ErrHandlerTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never finished")
	}

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
	if rec.Header().Get("X-Late") != "" {
		t.Error("late header leaked into response")
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Errorf("expected only the timeout JSON body, got %q", rec.Body.String())
	}
}

func TestNoTimeout(t *testing.T) {
	stage := New(5*time.Second, nil)

	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "catalog")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Correlation-ID", "abc")
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if rec.Header().Get("X-Upstream") != "catalog" {
		t.Error("expected upstream header")
	}
	if rec.Header().Get("X-Correlation-ID") != "abc" {
		t.Error("expected headers set by earlier stages to survive")
	}
	if ra := rec.Header().Get("Retry-After"); ra != "" {
		t.Error("did not expect Retry-After header on 201")
	}
}

func TestRouteOverride(t *testing.T) {
	stage := New(30*time.Second, nil)

	var deadline time.Duration
	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dl, ok := r.Context().Deadline(); ok {
			deadline = time.Until(dl)
		}
	}))

	req := withRoute(httptest.NewRequest("GET", "/order/1", nil), &router.Route{Name: "order", Timeout: 2 * time.Second})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if deadline <= 0 || deadline > 2*time.Second {
		t.Errorf("expected route deadline of at most 2s, got %v", deadline)
	}

	if got := stage.For(httptest.NewRequest("GET", "/", nil)); got != 30*time.Second {
		t.Errorf("expected default 30s, got %v", got)
	}
	if got := New(0, nil).For(httptest.NewRequest("GET", "/", nil)); got != DefaultTimeout {
		t.Errorf("expected DefaultTimeout, got %v", got)
	}
}

func TestPanicPropagates(t *testing.T) {
	stage := New(time.Second, nil)
	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		if p := recover(); p != "boom" {
			t.Errorf("expected panic to surface, got %v", p)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Fatal("expected panic")
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{30 * time.Second, "30"},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.d); got != tt.want {
			t.Errorf("retryAfter(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestResponseCompletedAtDeadlineIsKept(t *testing.T) {
	stage := New(20*time.Millisecond, nil)
	// Let the deadline pass and the handler return before the stage waits,
	// so both outcomes are ready at once.
	stage.beforeWait = func(ctx context.Context, done <-chan struct{}) {
		<-ctx.Done()
		<-done
	}

	handler := stage.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		func() {
			defer func() {
				if p := recover(); p != nil {
					t.Fatalf("iteration %d: completed response aborted: %v", i, p)
				}
			}()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/products", nil))
		}()

		if rec.Code != http.StatusOK || rec.Body.String() != `{"ok":true}` {
			t.Fatalf("iteration %d: got %d %q", i, rec.Code, rec.Body.String())
		}
	}
}
