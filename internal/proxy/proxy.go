package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	gwerrors "github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware/bodylimit"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

const copyBufferSize = 32 * 1024

// Proxy forwards requests to the backend of the route resolved at pipeline
// entry. It is the terminal handler of the pipeline.
type Proxy struct {
	transport     http.RoundTripper
	flushInterval time.Duration
}

// Config holds proxy configuration
type Config struct {
	Transport http.RoundTripper
	// FlushInterval controls response streaming: negative flushes after every
	// write, zero never flushes explicitly.
	FlushInterval time.Duration
}

// New creates a new proxy
func New(cfg Config) *Proxy {
	transport := cfg.Transport
	if transport == nil {
		transport = DefaultTransport()
	}
	return &Proxy{
		transport:     transport,
		flushInterval: cfg.FlushInterval,
	}
}

// ServeHTTP proxies r to the matched route, or answers 404 if none matched.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	varCtx := variables.GetFromRequest(r)
	if varCtx == nil || varCtx.Route == nil {
		gwerrors.ErrNotFound.WithDetails("No route for " + r.URL.Path).WriteJSON(w, r)
		return
	}
	route := varCtx.Route

	proxyReq := p.createProxyRequest(r, route, varCtx)
	resp, err := p.transport.RoundTrip(proxyReq)
	if err != nil {
		p.handleError(w, r, route, err)
		return
	}
	defer resp.Body.Close()

	p.copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if err := p.copyBody(w, resp.Body); err != nil {
		if r.Context().Err() != nil {
			// Client gone or deadline passed; the timeout stage owns the response.
			return
		}
		logging.Warn("Upstream response stream failed",
			zap.String("route", route.Name),
			zap.String("correlation_id", varCtx.CorrelationID),
			zap.Error(err),
		)
		panic(http.ErrAbortHandler)
	}
}

// createProxyRequest builds the outbound request. It carries r's context so
// that cancelling the request aborts the upstream connection.
func (p *Proxy) createProxyRequest(r *http.Request, route *router.Route, varCtx *variables.Context) *http.Request {
	target := route.Target
	targetURL := *target
	targetURL.Path = singleJoiningSlash(target.Path, route.ForwardPath(r.URL.Path))
	targetURL.RawPath = ""
	targetURL.RawQuery = r.URL.RawQuery

	proxyReq := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
	}).WithContext(r.Context())
	if r.ContentLength == 0 {
		proxyReq.Body = nil
	}

	// +3 for X-Forwarded-For/Proto/Host added below
	proxyReq.Header = make(http.Header, len(r.Header)+3)
	for k, vv := range r.Header {
		proxyReq.Header[k] = append([]string(nil), vv...)
	}
	removeHopHeaders(proxyReq.Header)

	if clientIP := varCtx.ClientIP; clientIP != "" {
		if prior := proxyReq.Header.Get("X-Forwarded-For"); prior != "" {
			proxyReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			proxyReq.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	if r.TLS != nil {
		proxyReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		proxyReq.Header.Set("X-Forwarded-Proto", "http")
	}

	proxyReq.Header.Set("X-Forwarded-Host", r.Host)

	return proxyReq
}

// handleError maps transport failures to gateway errors
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, route *router.Route, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		bodylimit.TooLarge(maxBytesErr.Limit).WriteJSON(w, r)
		return
	case errors.Is(err, context.DeadlineExceeded):
		gwerrors.ErrGatewayTimeout.WriteJSON(w, r)
		return
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		logging.Debug("Client cancelled request", zap.String("route", route.Name), zap.String("path", r.URL.Path))
		return
	}

	fields := []zap.Field{zap.String("route", route.Name), zap.String("path", r.URL.Path), zap.Error(err)}
	if varCtx := variables.GetFromRequest(r); varCtx != nil {
		fields = append(fields, zap.String("correlation_id", varCtx.CorrelationID))
	}
	logging.Warn("Upstream request failed", fields...)

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	gwerrors.ErrBadGateway.WithDetails(err.Error()).WriteJSON(w, r)
}

// Response headers the pipeline owns. A value already set by a stage wins
// over the backend's.
var gatewayOwnedHeaders = map[string]bool{
	"X-Correlation-Id":       true,
	"X-Trace-Id":             true,
	"X-Request-Id":           true,
	"X-Rate-Limit-Remaining": true,
	"X-Rate-Limit-Reset":     true,
	"X-Csrf-Token":           true,
	"Retry-After":            true,
}

// Response headers merged with what the pipeline already set.
var mergedHeaders = map[string]bool{
	"Set-Cookie": true,
	"Vary":       true,
}

func gatewayOwned(key string) bool {
	return gatewayOwnedHeaders[key] || strings.HasPrefix(key, "Access-Control-")
}

// copyHeaders merges upstream response headers into dst without
// overwriting headers set by the pipeline.
func (p *Proxy) copyHeaders(dst, src http.Header) {
	// Hop-by-hop headers named by the upstream Connection header
	src = src.Clone()
	removeHopHeaders(src)

	for k, vv := range src {
		k = http.CanonicalHeaderKey(k)
		switch {
		case mergedHeaders[k]:
			dst[k] = append(dst[k], vv...)
		case gatewayOwned(k) && len(dst[k]) > 0:
			continue
		default:
			dst[k] = append(dst[k][:0:0], vv...)
		}
	}
}

// copyBody streams the upstream body to the client, flushing as configured.
func (p *Proxy) copyBody(w http.ResponseWriter, body io.Reader) error {
	flusher, ok := w.(http.Flusher)
	if p.flushInterval == 0 || !ok {
		_, err := io.Copy(w, body)
		return err
	}

	buf := make([]byte, copyBufferSize)
	lastFlush := time.Now()
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			// A short read means the upstream paused; push what we have.
			if p.flushInterval < 0 || n < len(buf) || time.Since(lastFlush) >= p.flushInterval {
				flusher.Flush()
				lastFlush = time.Now()
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// Hop-by-hop headers that should be removed
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, v := range header.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// singleJoiningSlash joins two URL paths with a single slash
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
