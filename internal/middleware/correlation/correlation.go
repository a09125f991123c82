// Package correlation ensures every request carries correlation, trace and
// request ids, propagated to the backend and echoed on the response.
package correlation

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTraceID       = "X-Trace-ID"
	HeaderRequestID     = "X-Request-ID"
)

// maxIDLength bounds inbound ids; longer values are replaced.
const maxIDLength = 128

// Generator produces new identifiers.
type Generator func() string

// Handler propagates tracing identifiers.
type Handler struct {
	generate Generator
}

// New creates a correlation handler generating UUIDv4 ids.
func New() *Handler {
	return &Handler{generate: func() string { return uuid.New().String() }}
}

// NewWithGenerator creates a handler with a custom id generator.
func NewWithGenerator(g Generator) *Handler {
	return &Handler{generate: g}
}

// Middleware returns the stage middleware. It never short-circuits.
func (h *Handler) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := h.resolve(r, HeaderCorrelationID)
			traceID := h.resolve(r, HeaderTraceID)
			requestID := h.resolve(r, HeaderRequestID)

			if varCtx := variables.GetFromRequest(r); varCtx != nil {
				varCtx.CorrelationID = correlationID
				varCtx.TraceID = traceID
				varCtx.RequestID = requestID
			}

			// Set before next so short-circuited responses carry them too.
			w.Header().Set(HeaderCorrelationID, correlationID)
			w.Header().Set(HeaderTraceID, traceID)
			w.Header().Set(HeaderRequestID, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// resolve returns the inbound id for header, or a generated one, and writes
// it back onto the request so it travels upstream.
func (h *Handler) resolve(r *http.Request, header string) string {
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" || len(id) > maxIDLength || !printable(id) {
		id = h.generate()
	}
	r.Header.Set(header, id)
	return id
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
