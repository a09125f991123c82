package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// ErrorNormalizer recovers failures that escape the pipeline and renders
// them as the uniform JSON error body. Error panic values keep a client
// status they expose (400, 401, 403, 404); anything else becomes 500.
func ErrorNormalizer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Deliberate connection aborts must reach net/http.
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				gwErr := classifyPanic(rec)
				fields := []zap.Field{
					zap.Any("error", rec),
					zap.Int("status", gwErr.Status),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				}
				if varCtx := variables.GetFromRequest(r); varCtx != nil {
					fields = append(fields, zap.String("correlation_id", varCtx.CorrelationID))
				}
				logging.Error("Unhandled failure in request pipeline", fields...)

				if rw.HeaderWritten() {
					// Too late for an error body; abort so the client sees a
					// truncated response instead of a corrupt one.
					panic(http.ErrAbortHandler)
				}
				gwErr.WriteJSON(rw, r)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

func classifyPanic(rec interface{}) *errors.GatewayError {
	if err, ok := rec.(error); ok {
		return errors.FromError(err)
	}
	return errors.ErrInternalServer
}
