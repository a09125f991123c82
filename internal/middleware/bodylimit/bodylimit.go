// Package bodylimit rejects request bodies larger than a configured maximum.
package bodylimit

import (
	"fmt"
	"net/http"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
)

// DefaultMaxBytes is used when no limit is configured (10 MiB).
const DefaultMaxBytes int64 = 10 << 20

// Middleware returns the stage middleware. A declared Content-Length above
// max is rejected before anything is forwarded; undeclared bodies are capped
// while streaming and surface as *http.MaxBytesError to the proxy.
func Middleware(max int64) middleware.Middleware {
	if max <= 0 {
		max = DefaultMaxBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				TooLarge(max).WriteJSON(w, r)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TooLarge returns the 413 error for limit.
func TooLarge(limit int64) *errors.GatewayError {
	return errors.ErrPayloadTooLarge.WithDetails(
		fmt.Sprintf("Request body exceeds maximum size of %d bytes", limit),
	)
}
