// Package healthgate rejects requests routed to a backend service with an
// unhealthy verdict.
package healthgate

import (
	"context"
	"net/http"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Checker reports service health. Implementations fail open.
type Checker interface {
	IsHealthy(ctx context.Context, serviceID string) bool
}

// Middleware returns the stage middleware.
func Middleware(checker Checker) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varCtx := variables.GetFromRequest(r)
			if varCtx == nil || varCtx.Route == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !checker.IsHealthy(r.Context(), varCtx.Route.ServiceID) {
				errors.ErrServiceUnavailable.WithDetails("Service " + varCtx.Route.ServiceID + " is unavailable").WriteJSON(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
