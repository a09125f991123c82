package ipfilter

import (
	"fmt"
	"net/http"
	"net/netip"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/errors"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/middleware"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/variables"
)

// Filter checks client IPs against allow/deny prefixes parsed once at startup.
type Filter struct {
	enabled bool
	allow   []netip.Prefix
	deny    []netip.Prefix
}

// New creates a new IP filter from config
func New(cfg config.IPFilterConfig) (*Filter, error) {
	f := &Filter{enabled: cfg.Enabled}

	var err error
	if f.allow, err = parsePrefixes(cfg.Allow); err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	if f.deny, err = parsePrefixes(cfg.Deny); err != nil {
		return nil, fmt.Errorf("deny list: %w", err)
	}
	return f, nil
}

// parsePrefixes accepts CIDRs and single addresses. IPv4-mapped IPv6
// addresses are folded to IPv4.
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP or CIDR %q", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Allowed reports whether clientIP passes the filter. Deny entries win over
// allow entries; a non-empty allow list admits only its members. An
// undeterminable address is denied while the filter is enabled.
func (f *Filter) Allowed(clientIP string) bool {
	if !f.enabled {
		return true
	}

	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if containsAddr(f.deny, addr) {
		return false
	}
	return len(f.allow) == 0 || containsAddr(f.allow, addr)
}

// Middleware returns the stage middleware, answering 403 for rejected clients.
func (f *Filter) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientIP string
			if varCtx := variables.GetFromRequest(r); varCtx != nil {
				clientIP = varCtx.ClientIP
			} else {
				clientIP = variables.ExtractClientIP(r, false)
			}

			if !f.Allowed(clientIP) {
				errors.ErrForbidden.WithDetails("IP address not allowed").WriteJSON(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
