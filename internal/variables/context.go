package variables

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
)

// Identity holds the caller identity extracted from a verified bearer token.
type Identity struct {
	UserID      string
	Roles       []string
	Permissions []string
}

// Context is the per-request state shared by the pipeline stages.
// It is owned by one in-flight request and never shared across requests.
type Context struct {
	CorrelationID string
	TraceID       string
	RequestID     string
	ClientIP      string
	Method        string
	Path          string
	Identity      *Identity
	// Route is nil when no route matches the request path.
	Route     *router.Route
	StartTime time.Time
}

// NewContext creates a request context for r using the supplied client IP.
func NewContext(r *http.Request, clientIP string) *Context {
	return &Context{
		ClientIP:  clientIP,
		Method:    r.Method,
		Path:      r.URL.Path,
		StartTime: time.Now(),
	}
}

// UserID returns the authenticated user id, or "".
func (c *Context) UserID() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.UserID
}

// RouteName returns the matched route name, or "".
func (c *Context) RouteName() string {
	if c.Route == nil {
		return ""
	}
	return c.Route.Name
}

// RequestContextKey is the context key for storing variable context
type RequestContextKey struct{}

// WithContext returns a copy of r carrying vc.
func WithContext(r *http.Request, vc *Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), RequestContextKey{}, vc))
}

// GetFromRequest extracts the variable context from an HTTP request.
// Returns nil when the request did not enter through the pipeline.
func GetFromRequest(r *http.Request) *Context {
	if ctx, ok := r.Context().Value(RequestContextKey{}).(*Context); ok {
		return ctx
	}
	return nil
}

// ExtractClientIP extracts the client IP. Forwarding headers are consulted
// only when trustForwarded is set. Returns "" if no address can be parsed.
func ExtractClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		// Check X-Forwarded-For first
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}

		// Check X-Real-IP
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := normalizeIP(xri); ip != "" {
				return ip
			}
		}
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
