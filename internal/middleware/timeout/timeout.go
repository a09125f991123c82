package timeout

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// DefaultTimeout applies when neither the route nor the config sets one.
const DefaultTimeout = 30 * time.Second

// Timeout bounds the rest of the chain with a per-request deadline.
type Timeout struct {
	def     time.Duration
	metrics *metrics.Collector

	// beforeWait runs before the stage waits on the handler. Tests use it
	// to line up completion with the deadline.
	beforeWait func(ctx context.Context, done <-chan struct{})
}

// New creates a timeout stage with the given default deadline.
func New(def time.Duration, m *metrics.Collector) *Timeout {
	if def <= 0 {
		def = DefaultTimeout
	}
	return &Timeout{def: def, metrics: m}
}

// For returns the deadline applied to r.
func (t *Timeout) For(r *http.Request) time.Duration {
	if varCtx := variables.GetFromRequest(r); varCtx != nil && varCtx.Route != nil {
		return varCtx.Route.EffectiveTimeout(t.def)
	}
	return t.def
}

// Middleware returns the stage middleware. The downstream handler runs under
// a context that is cancelled at the deadline, which aborts the upstream
// connection. If nothing was written by then the client gets 504, and any
// later write from the handler is discarded.
func (t *Timeout) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := t.For(r)
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{
				w:          w,
				h:          w.Header().Clone(),
				retryAfter: retryAfter(d),
			}
			done := make(chan struct{})
			panicChan := make(chan interface{}, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
						return
					}
					close(done)
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			if t.beforeWait != nil {
				t.beforeWait(ctx, done)
			}

			select {
			case p := <-panicChan:
				panic(p)

			case <-done:
				t.finished(ctx, r, d)

			case <-ctx.Done():
				// select picks at random when both are ready; a handler that
				// completed at the deadline keeps its response.
				select {
				case p := <-panicChan:
					panic(p)
				case <-done:
					t.finished(ctx, r, d)
					return
				default:
				}

				tw.mu.Lock()
				tw.timedOut = true
				wrote := tw.wroteHeader
				tw.mu.Unlock()

				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					// Client went away; nobody is listening.
					return
				}
				t.recordTimeout(r, d)

				if wrote {
					// Headers are out; abort so the client sees a truncated response.
					panic(http.ErrAbortHandler)
				}
				w.Header().Set("Retry-After", tw.retryAfter)
				gwerrors.ErrGatewayTimeout.WithDetails("Upstream did not respond in " + d.String()).WriteJSON(w, r)
			}
		})
	}
}

// finished handles a handler that returned on its own. It may still have
// answered 504 itself after seeing the deadline.
func (t *Timeout) finished(ctx context.Context, r *http.Request, d time.Duration) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.recordTimeout(r, d)
	}
}

func (t *Timeout) recordTimeout(r *http.Request, d time.Duration) {
	route := ""
	fields := []zap.Field{zap.String("path", r.URL.Path), zap.Duration("timeout", d)}
	if varCtx := variables.GetFromRequest(r); varCtx != nil {
		route = varCtx.RouteName()
		fields = append(fields,
			zap.String("route", route),
			zap.String("correlation_id", varCtx.CorrelationID),
		)
	}
	t.metrics.RecordUpstreamTimeout(route)
	logging.Warn("Request exceeded deadline", fields...)
}

func retryAfter(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// timeoutWriter streams to the client until the deadline passes. The
// handler goroutine gets its own header map so it never races with the
// timeout response.
type timeoutWriter struct {
	w          http.ResponseWriter
	h          http.Header
	retryAfter string

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.h
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.w.Header()
	for k := range dst {
		delete(dst, k)
	}
	for k, vv := range tw.h {
		dst[k] = vv
	}
	if code == http.StatusGatewayTimeout {
		dst.Set("Retry-After", tw.retryAfter)
	}
	tw.wroteHeader = true
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

// Flush implements http.Flusher
func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}
