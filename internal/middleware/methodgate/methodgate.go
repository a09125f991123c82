// Package methodgate splits public reads from protected writes on routes
// flagged public_read.
package methodgate

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/claims"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Middleware returns the stage middleware. Mutating requests on public-read
// routes need a syntactically valid bearer token; verification happens later.
func Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varCtx := variables.GetFromRequest(r)
			if varCtx == nil || varCtx.Route == nil || !varCtx.Route.PublicRead || !router.IsMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" {
				errors.ErrUnauthorized.WriteJSON(w, r)
				return
			}
			if !WellFormed(claims.BearerToken(r)) {
				errors.ErrUnauthorized.WithDetails("Malformed bearer token").WriteJSON(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WellFormed reports whether token has the compact JWS shape: three
// non-empty base64url segments.
func WellFormed(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		if _, err := base64.RawURLEncoding.DecodeString(part); err != nil {
			return false
		}
	}
	return true
}
