package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
)

// Handler applies a static CORS policy
type Handler struct {
	allowOrigins     []string
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	allowCredentials bool
	maxAge           string
	allowAllOrigins  bool
}

// New creates a new CORS handler from config
func New(cfg config.CORSConfig) *Handler {
	h := &Handler{
		allowOrigins:     cfg.AllowOrigins,
		allowCredentials: cfg.AllowCredentials,
	}

	if len(cfg.AllowMethods) > 0 {
		h.allowMethods = strings.Join(cfg.AllowMethods, ", ")
	} else {
		h.allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}

	if len(cfg.AllowHeaders) > 0 {
		h.allowHeaders = strings.Join(cfg.AllowHeaders, ", ")
	} else {
		h.allowHeaders = "Authorization, Content-Type"
	}

	if len(cfg.ExposeHeaders) > 0 {
		h.exposeHeaders = strings.Join(cfg.ExposeHeaders, ", ")
	}

	if cfg.MaxAge > 0 {
		h.maxAge = strconv.Itoa(cfg.MaxAge)
	} else {
		h.maxAge = "3600"
	}

	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			h.allowAllOrigins = true
			break
		}
	}

	return h
}

// HandlePreflight answers an OPTIONS request with the full policy and 200.
func (h *Handler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	h.setOrigin(w, r)
	w.Header().Set("Access-Control-Allow-Methods", h.allowMethods)
	w.Header().Set("Access-Control-Allow-Headers", h.allowHeaders)
	if h.exposeHeaders != "" {
		w.Header().Set("Access-Control-Expose-Headers", h.exposeHeaders)
	}
	w.Header().Set("Access-Control-Max-Age", h.maxAge)
	w.Header().Add("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
	w.WriteHeader(http.StatusOK)
}

// ApplyHeaders adds CORS headers to a non-preflight response
func (h *Handler) ApplyHeaders(w http.ResponseWriter, r *http.Request) {
	if !h.setOrigin(w, r) {
		return
	}
	if h.exposeHeaders != "" {
		w.Header().Set("Access-Control-Expose-Headers", h.exposeHeaders)
	}
	w.Header().Add("Vary", "Origin")
}

// setOrigin writes the allow-origin and credentials headers when the request
// origin is permitted. Credentialed responses echo the exact origin.
func (h *Handler) setOrigin(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if !h.allowAllOrigins || h.allowCredentials {
			return false
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return true
	}
	if !h.isOriginAllowed(origin) {
		return false
	}

	respOrigin := origin
	if h.allowAllOrigins && !h.allowCredentials {
		respOrigin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", respOrigin)
	if h.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	return true
}

func (h *Handler) isOriginAllowed(origin string) bool {
	if h.allowAllOrigins {
		return true
	}

	for _, allowed := range h.allowOrigins {
		if allowed == origin {
			return true
		}
		// Simple wildcard matching: *.example.com
		if strings.HasPrefix(allowed, "*.") {
			suffix := allowed[1:] // .example.com
			if strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}

	return false
}

// Middleware returns the stage middleware. Every OPTIONS request is answered
// here, before authentication or routing.
func (h *Handler) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				h.HandlePreflight(w, r)
				return
			}
			h.ApplyHeaders(w, r)
			next.ServeHTTP(w, r)
		})
	}
}
