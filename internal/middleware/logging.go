package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "unmatched"

// Logging writes one access log entry per request after the chain completes,
// including short-circuited and failed requests.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", rw.Status()),
					zap.Int64("body_bytes", rw.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				}
				if varCtx := variables.GetFromRequest(r); varCtx != nil {
					fields = append(fields,
						zap.String("route", varCtx.RouteName()),
						zap.String("client_ip", varCtx.ClientIP),
						zap.String("correlation_id", varCtx.CorrelationID),
						zap.String("trace_id", varCtx.TraceID),
						zap.String("request_id", varCtx.RequestID),
					)
					if uid := varCtx.UserID(); uid != "" {
						fields = append(fields, zap.String("user_id", uid))
					}
				}
				logging.Info("HTTP request", fields...)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// Metrics records a request counter and duration tagged by method, route
// and status for every request.
func Metrics(c *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			defer func() {
				route := unmatchedRoute
				if varCtx := variables.GetFromRequest(r); varCtx != nil && varCtx.Route != nil {
					route = varCtx.Route.Name
				}
				c.RecordRequest(r.Method, route, rw.Status(), time.Since(start))
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
