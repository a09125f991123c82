// Package validation checks request content types and requires an
// Authorization header on protected path prefixes.
package validation

import (
	"mime"
	"net/http"
	"strings"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
)

// Validator holds the allow-list and protected prefixes parsed at startup.
type Validator struct {
	allowedTypes map[string]bool
	protected    []string
}

// New creates a new Validator from config.
func New(cfg config.ValidationConfig) *Validator {
	v := &Validator{allowedTypes: make(map[string]bool, len(cfg.AllowedContentTypes))}
	for _, ct := range cfg.AllowedContentTypes {
		v.allowedTypes[strings.ToLower(strings.TrimSpace(ct))] = true
	}
	for _, p := range cfg.ProtectedPrefixes {
		if p = strings.TrimSuffix(p, "/"); p != "" {
			v.protected = append(v.protected, p)
		}
	}
	return v
}

// hasBody reports whether a body-carrying method declares a body. Chunked
// requests report ContentLength -1 and count as having one.
func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

// CheckContentType returns nil when the request's content type is acceptable.
func (v *Validator) CheckContentType(r *http.Request) *errors.GatewayError {
	if !hasBody(r) {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return errors.ErrBadRequest.WithDetails("Content-Type header is required")
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return errors.ErrBadRequest.WithDetails("Malformed Content-Type header")
	}
	if !v.allowedTypes[mediaType] {
		return errors.ErrUnsupportedMediaType.WithDetails("Unsupported content type: " + mediaType)
	}
	return nil
}

// IsProtected reports whether path falls under a protected prefix. Prefixes
// match whole segments.
func (v *Validator) IsProtected(path string) bool {
	for _, p := range v.protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware returns the stage middleware.
func (v *Validator) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gwErr := v.CheckContentType(r); gwErr != nil {
				gwErr.WriteJSON(w, r)
				return
			}
			if v.IsProtected(r.URL.Path) && r.Header.Get("Authorization") == "" {
				errors.ErrUnauthorized.WriteJSON(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
