package correlation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

func serve(h *Handler, req *http.Request, downstream http.HandlerFunc) *httptest.ResponseRecorder {
	req = variables.WithContext(req, variables.NewContext(req, "10.0.0.1"))
	rr := httptest.NewRecorder()
	h.Middleware()(downstream).ServeHTTP(rr, req)
	return rr
}

func TestEchoesInboundIDs(t *testing.T) {
	req := httptest.NewRequest("GET", "/catalog", nil)
	req.Header.Set(HeaderCorrelationID, "corr-abc")
	req.Header.Set(HeaderTraceID, "trace-abc")

	var upstream http.Header
	var ctxID string
	rr := serve(New(), req, func(w http.ResponseWriter, r *http.Request) {
		upstream = r.Header.Clone()
		ctxID = variables.GetFromRequest(r).CorrelationID
	})

	if got := rr.Header().Get(HeaderCorrelationID); got != "corr-abc" {
		t.Errorf("expected echoed correlation id, got %q", got)
	}
	if got := rr.Header().Get(HeaderTraceID); got != "trace-abc" {
		t.Errorf("expected echoed trace id, got %q", got)
	}
	if upstream.Get(HeaderCorrelationID) != "corr-abc" {
		t.Error("expected correlation id forwarded upstream")
	}
	if ctxID != "corr-abc" {
		t.Errorf("expected context correlation id, got %q", ctxID)
	}
}

func TestGeneratesMissingIDs(t *testing.T) {
	req := httptest.NewRequest("GET", "/catalog", nil)

	var upstream http.Header
	rr := serve(New(), req, func(w http.ResponseWriter, r *http.Request) {
		upstream = r.Header.Clone()
	})

	for _, header := range []string{HeaderCorrelationID, HeaderTraceID, HeaderRequestID} {
		id := rr.Header().Get(header)
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("%s: expected a UUID, got %q", header, id)
		}
		if upstream.Get(header) != id {
			t.Errorf("%s: upstream %q differs from response %q", header, upstream.Get(header), id)
		}
	}
	if rr.Header().Get(HeaderCorrelationID) == rr.Header().Get(HeaderTraceID) {
		t.Error("expected distinct correlation and trace ids")
	}
}

func TestReplacesInvalidIDs(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderCorrelationID, strings.Repeat("a", maxIDLength+1))
	req.Header.Set(HeaderTraceID, "has space")

	n := 0
	h := NewWithGenerator(func() string {
		n++
		return "gen-" + string(rune('0'+n))
	})
	rr := serve(h, req, func(w http.ResponseWriter, r *http.Request) {})

	if got := rr.Header().Get(HeaderCorrelationID); got != "gen-1" {
		t.Errorf("expected oversized id replaced, got %q", got)
	}
	if got := rr.Header().Get(HeaderTraceID); got != "gen-2" {
		t.Errorf("expected non-printable id replaced, got %q", got)
	}
}

func TestHeadersPresentOnShortCircuit(t *testing.T) {
	req := httptest.NewRequest("DELETE", "/order/1", nil)
	req.Header.Set(HeaderCorrelationID, "corr-1")
	rr := serve(New(), req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if rr.Header().Get(HeaderCorrelationID) != "corr-1" {
		t.Error("expected correlation id on rejected response")
	}
}

func TestWithoutRequestContext(t *testing.T) {
	rr := httptest.NewRecorder()
	New().Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Header().Get(HeaderCorrelationID) == "" {
		t.Error("expected a generated correlation id")
	}
}
