package middleware

import (
	"net/http"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// RequestContext creates the per-request context at pipeline entry and
// resolves the route for the request path. The route is nil when nothing
// matches; stages skip route policy and the proxy answers 404.
func RequestContext(table *router.Table, trustForwarded bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varCtx := variables.NewContext(r, variables.ExtractClientIP(r, trustForwarded))
			if table != nil {
				varCtx.Route = table.Match(r.URL.Path)
			}
			next.ServeHTTP(w, variables.WithContext(r, varCtx))
		})
	}
}
