// Package rolegate enforces route role requirements against the verified
// X-User-Roles header.
package rolegate

import (
	"net/http"
	"strings"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/claims"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Middleware returns the stage middleware. A caller passes when it holds at
// least one of the roles the route requires for the request method.
func Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varCtx := variables.GetFromRequest(r)
			if varCtx == nil || varCtx.Route == nil {
				next.ServeHTTP(w, r)
				return
			}
			required := varCtx.Route.RolesRequiredFor(r.Method)
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(claims.HeaderUserRoles)
			if header == "" {
				errors.ErrForbidden.WithDetails("Missing user roles").WriteJSON(w, r)
				return
			}
			if !Intersects(header, required) {
				errors.ErrForbidden.WithDetails("Insufficient role").WriteJSON(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Intersects reports whether the comma-separated roles share a member with
// required.
func Intersects(roles string, required map[string]bool) bool {
	for _, role := range strings.Split(roles, ",") {
		if required[strings.TrimSpace(role)] {
			return true
		}
	}
	return false
}
