// Package claims extracts caller identity from a bearer token. Extraction is
// best-effort: a missing, malformed or unverifiable token leaves the request
// anonymous and never produces a response.
package claims

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Identity headers sent to backends.
const (
	HeaderUserID          = "X-User-Id"
	HeaderUserRoles       = "X-User-Roles"
	HeaderUserPermissions = "X-User-Permissions"
)

// Extractor verifies bearer tokens against a shared HMAC secret.
type Extractor struct {
	secret    []byte
	issuer    string
	algorithm string
	parser    *jwt.Parser
}

// New creates an extractor. A disabled config yields an extractor that only
// scrubs client-supplied identity headers.
func New(cfg config.JWTConfig) (*Extractor, error) {
	e := &Extractor{issuer: cfg.Issuer, algorithm: cfg.Algorithm}
	if !cfg.Enabled {
		return e, nil
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if e.algorithm == "" {
		e.algorithm = "HS256"
	}
	if jwt.GetSigningMethod(e.algorithm) == nil || !strings.HasPrefix(e.algorithm, "HS") {
		return nil, fmt.Errorf("unsupported jwt algorithm: %s", e.algorithm)
	}
	e.secret = []byte(cfg.Secret)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{e.algorithm})}
	if e.issuer != "" {
		opts = append(opts, jwt.WithIssuer(e.issuer))
	}
	e.parser = jwt.NewParser(opts...)
	return e, nil
}

// Extract returns the identity carried by a verified token, or an error.
func (e *Extractor) Extract(tokenString string) (*variables.Identity, error) {
	if e.parser == nil {
		return nil, fmt.Errorf("claims extraction disabled")
	}

	token, err := e.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return e.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims.GetSubject()
	identity := &variables.Identity{
		UserID:      sub,
		Roles:       stringList(claims["roles"]),
		Permissions: stringList(claims["permissions"]),
	}
	if identity.UserID == "" {
		if uid, ok := claims["userId"].(string); ok {
			identity.UserID = uid
		}
	}
	return identity, nil
}

// stringList accepts a JSON array or a comma-separated string claim.
func stringList(v interface{}) []string {
	var out []string
	switch val := v.(type) {
	case string:
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Middleware returns the stage middleware. Inbound identity headers are
// always removed; verified claims are written back for the backend.
func (e *Extractor) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(HeaderUserID)
			r.Header.Del(HeaderUserRoles)
			r.Header.Del(HeaderUserPermissions)

			if token := BearerToken(r); token != "" && e.parser != nil {
				identity, err := e.Extract(token)
				if err != nil {
					logging.Debug("Bearer token claims not extracted", zap.Error(err))
				} else {
					if varCtx := variables.GetFromRequest(r); varCtx != nil {
						varCtx.Identity = identity
					}
					setIdentityHeaders(r.Header, identity)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setIdentityHeaders(h http.Header, identity *variables.Identity) {
	if identity.UserID != "" {
		h.Set(HeaderUserID, identity.UserID)
	}
	if len(identity.Roles) > 0 {
		h.Set(HeaderUserRoles, strings.Join(identity.Roles, ","))
	}
	if len(identity.Permissions) > 0 {
		h.Set(HeaderUserPermissions, strings.Join(identity.Permissions, ","))
	}
}
