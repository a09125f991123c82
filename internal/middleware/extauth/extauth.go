// Package extauth delegates bearer token validation to the external auth
// service. Results are not cached.
package extauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/metrics"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Delegation results recorded in metrics.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// ExtAuth validates tokens against POST <base_url><validate_path>.
type ExtAuth struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Collector
}

// New creates a new ExtAuth client from config.
func New(cfg config.AuthServiceConfig, m *metrics.Collector) (*ExtAuth, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("auth service base_url is required")
	}
	path := cfg.ValidatePath
	if path == "" {
		path = "/auth/validate"
	}

	ea := &ExtAuth{
		url:     strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/"),
		timeout: cfg.Timeout,
		metrics: m,
	}
	if ea.timeout == 0 {
		ea.timeout = 5 * time.Second
	}
	ea.httpClient = &http.Client{
		Timeout: ea.timeout,
		// Redirects from the auth service are treated as rejections.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return ea, nil
}

// Check sends the request's Authorization header to the auth service and
// reports whether it answered 2xx. A transport failure returns an error.
func (ea *ExtAuth) Check(ctx context.Context, r *http.Request) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ea.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ea.url, nil)
	if err != nil {
		return false, fmt.Errorf("create auth request: %w", err)
	}
	httpReq.Header.Set("Authorization", r.Header.Get("Authorization"))
	if id := r.Header.Get("X-Correlation-ID"); id != "" {
		httpReq.Header.Set("X-Correlation-ID", id)
	}

	resp, err := ea.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("auth service request: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Middleware returns the stage middleware. It applies to routes whose policy
// requires authentication for the request method.
func (ea *ExtAuth) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varCtx := variables.GetFromRequest(r)
			if varCtx == nil || varCtx.Route == nil || !varCtx.Route.AuthRequiredFor(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" {
				errors.ErrUnauthorized.WriteJSON(w, r)
				return
			}

			valid, err := ea.Check(r.Context(), r)
			switch {
			case err != nil:
				ea.metrics.RecordAuthDelegation(ResultError)
				logging.Warn("Auth service validation failed",
					zap.String("route", varCtx.RouteName()),
					zap.String("correlation_id", varCtx.CorrelationID),
					zap.Error(err),
				)
				errors.ErrUnauthorized.WithDetails("Token validation unavailable").WriteJSON(w, r)
				return
			case !valid:
				ea.metrics.RecordAuthDelegation(ResultInvalid)
				errors.ErrUnauthorized.WithDetails("Invalid or expired token").WriteJSON(w, r)
				return
			}

			ea.metrics.RecordAuthDelegation(ResultValid)
			next.ServeHTTP(w, r)
		})
	}
}
