package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/router"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Protector issues tokens on GET and checks them on state-changing methods.
type Protector struct {
	secret       []byte
	cookieName   string
	headerName   string
	tokenTTL     time.Duration
	cookiePath   string
	cookieDomain string
	doubleSubmit bool
	exemptPaths  []string
	now          func() time.Time
}

// New creates a Protector from config. Without a configured secret a random
// one is generated, so tokens do not survive a restart.
func New(cfg config.CSRFConfig) (*Protector, error) {
	p := &Protector{
		secret:       []byte(cfg.Secret),
		cookieName:   cfg.CookieName,
		headerName:   cfg.HeaderName,
		tokenTTL:     cfg.TokenTTL,
		cookiePath:   cfg.CookiePath,
		cookieDomain: cfg.CookieDomain,
		doubleSubmit: cfg.DoubleSubmit,
		exemptPaths:  cfg.ExemptPaths,
		now:          time.Now,
	}
	if p.cookieName == "" {
		p.cookieName = "XSRF-TOKEN"
	}
	if p.headerName == "" {
		p.headerName = "X-CSRF-Token"
	}
	if p.tokenTTL == 0 {
		p.tokenTTL = time.Hour
	}
	if p.cookiePath == "" {
		p.cookiePath = "/"
	}
	for _, pattern := range p.exemptPaths {
		if _, err := filepath.Match(pattern, "/"); err != nil {
			return nil, fmt.Errorf("csrf: invalid exempt path %q: %w", pattern, err)
		}
	}
	if len(p.secret) == 0 {
		p.secret = make([]byte, 32)
		if _, err := rand.Read(p.secret); err != nil {
			return nil, fmt.Errorf("csrf: generate secret: %w", err)
		}
	}
	return p, nil
}

// Check validates a state-changing request. It returns "" when the request
// may proceed, otherwise the rejection reason.
func (p *Protector) Check(r *http.Request) string {
	headerToken := r.Header.Get(p.headerName)
	if headerToken == "" {
		return "CSRF token missing"
	}
	if !p.doubleSubmit {
		return ""
	}

	cookie, err := r.Cookie(p.cookieName)
	if err != nil || cookie.Value == "" {
		return "CSRF cookie missing"
	}
	if !hmac.Equal([]byte(cookie.Value), []byte(headerToken)) {
		return "CSRF token mismatch"
	}
	return p.validateToken(headerToken)
}

// Issue generates a token and attaches it to the response as a header and
// a secure, http-only cookie.
func (p *Protector) Issue(w http.ResponseWriter) (string, error) {
	token, err := p.generateToken()
	if err != nil {
		return "", err
	}
	w.Header().Set(p.headerName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    token,
		Path:     p.cookiePath,
		Domain:   p.cookieDomain,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(p.tokenTTL.Seconds()),
		Expires:  p.now().Add(p.tokenTTL),
	})
	return token, nil
}

// generateToken creates a signed token: base64url(timestamp.nonce.hmac-hex).
func (p *Protector) generateToken() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("csrf: generate nonce: %w", err)
	}
	payload := strconv.FormatInt(p.now().Unix(), 10) + "." + hex.EncodeToString(nonce)
	raw := payload + "." + p.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

func (p *Protector) sign(payload string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// validateToken verifies the token's HMAC signature and expiry.
func (p *Protector) validateToken(token string) string {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "CSRF token malformed"
	}

	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 {
		return "CSRF token malformed"
	}

	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "CSRF token malformed"
	}

	if p.now().Sub(time.Unix(ts, 0)) > p.tokenTTL {
		return "CSRF token expired"
	}

	expected := p.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return "CSRF token invalid signature"
	}
	return ""
}

// isExemptPath checks if the request path matches any exempt pattern.
func (p *Protector) isExemptPath(path string) bool {
	for _, pattern := range p.exemptPaths {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

// Middleware returns the stage middleware.
func (p *Protector) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodGet {
				if _, err := p.Issue(w); err != nil {
					logging.Error("CSRF token issuance failed", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			if router.IsMutating(r.Method) {
				if reason := p.Check(r); reason != "" {
					fields := []zap.Field{zap.String("path", r.URL.Path), zap.String("reason", reason)}
					if varCtx := variables.GetFromRequest(r); varCtx != nil {
						fields = append(fields, zap.String("correlation_id", varCtx.CorrelationID))
					}
					logging.Debug("CSRF check rejected request", fields...)
					errors.ErrForbidden.WithDetails(reason).WriteJSON(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
