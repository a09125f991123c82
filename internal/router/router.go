package router

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
)

// Route is an immutable route entry built from configuration.
type Route struct {
	Name         string
	PathPrefix   string
	Target       *url.URL
	ServiceID    string
	StripPrefix  bool
	RequiresAuth bool
	// PublicRead routes serve GET/HEAD anonymously and require a token for writes.
	PublicRead    bool
	RequiredRoles map[string]bool
	// RoleMethods scopes RequiredRoles to these methods. Empty means all methods.
	RoleMethods map[string]bool
	Timeout     time.Duration

	segments  []string
	configIdx int
}

// IsMutating reports whether method changes server state.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// AuthRequiredFor reports whether a request with method must be validated by
// the auth service.
func (route *Route) AuthRequiredFor(method string) bool {
	if route.RequiresAuth {
		return true
	}
	return route.PublicRead && IsMutating(method)
}

// RolesRequiredFor returns the roles a caller needs for method, or nil when
// the route places no role requirement on it.
func (route *Route) RolesRequiredFor(method string) map[string]bool {
	if len(route.RequiredRoles) == 0 {
		return nil
	}
	if len(route.RoleMethods) > 0 && !route.RoleMethods[method] {
		return nil
	}
	return route.RequiredRoles
}

// Roles returns the required roles in sorted order.
func (route *Route) Roles() []string {
	return sortedKeys(route.RequiredRoles)
}

// Methods returns the role-scoped methods in sorted order.
func (route *Route) Methods() []string {
	return sortedKeys(route.RoleMethods)
}

// ForwardPath returns the path sent upstream for requestPath.
func (route *Route) ForwardPath(requestPath string) string {
	if !route.StripPrefix {
		return requestPath
	}
	return stripRoutePrefix(route.PathPrefix, requestPath)
}

// EffectiveTimeout returns the route timeout, or def when none is configured.
func (route *Route) EffectiveTimeout(def time.Duration) time.Duration {
	if route.Timeout > 0 {
		return route.Timeout
	}
	return def
}

// stripRoutePrefix removes the route's path prefix segments from the request
// path. The remainder, including any trailing slash, is kept as sent.
func stripRoutePrefix(pattern, path string) string {
	rest := path
	for _, seg := range splitPath(pattern) {
		rest = strings.TrimLeft(rest, "/")
		after, ok := strings.CutPrefix(rest, seg)
		if !ok || (after != "" && after[0] != '/') {
			return path
		}
		rest = after
	}
	if rest == "" {
		return "/"
	}
	if rest[0] != '/' {
		return "/" + rest
	}
	return rest
}

// Table matches request paths to routes by longest segment prefix.
// It is built once and never mutated, so lookups need no locking.
type Table struct {
	byLength []*Route // longest prefix first
	ordered  []*Route // configuration order
	byName   map[string]*Route
}

// New builds a route table from configuration.
func New(routes []config.RouteConfig) (*Table, error) {
	t := &Table{byName: make(map[string]*Route, len(routes))}

	for i, rc := range routes {
		target, err := url.Parse(rc.Target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: invalid target %q", rc.Name, rc.Target)
		}
		if _, dup := t.byName[rc.Name]; dup {
			return nil, fmt.Errorf("duplicate route name: %s", rc.Name)
		}

		serviceID := rc.ServiceID
		if serviceID == "" {
			serviceID = rc.Name
		}

		route := &Route{
			Name:          rc.Name,
			PathPrefix:    rc.PathPrefix,
			Target:        target,
			ServiceID:     serviceID,
			StripPrefix:   rc.StripPrefix,
			RequiresAuth:  rc.RequiresAuth,
			PublicRead:    rc.PublicRead,
			RequiredRoles: toSet(rc.RequiredRoles, false),
			RoleMethods:   toSet(rc.RoleMethods, true),
			Timeout:       rc.Timeout,
			segments:      splitPath(rc.PathPrefix),
			configIdx:     i,
		}

		t.byName[route.Name] = route
		t.ordered = append(t.ordered, route)
	}

	t.byLength = make([]*Route, len(t.ordered))
	copy(t.byLength, t.ordered)
	sort.SliceStable(t.byLength, func(i, j int) bool {
		return len(t.byLength[i].segments) > len(t.byLength[j].segments)
	})

	return t, nil
}

// Match returns the route with the longest prefix matching path, or nil.
// Prefixes match whole segments: /catalog matches /catalog/x but not /catalogue.
func (t *Table) Match(path string) *Route {
	reqSegments := splitPath(path)
	for _, route := range t.byLength {
		if pathHasPrefix(reqSegments, route.segments) {
			return route
		}
	}
	return nil
}

// Get returns a route by name
func (t *Table) Get(name string) *Route {
	return t.byName[name]
}

// Routes returns all routes in configuration order
func (t *Table) Routes() []*Route {
	result := make([]*Route, len(t.ordered))
	copy(result, t.ordered)
	return result
}

// splitPath splits a URL path into non-empty segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// pathHasPrefix checks if reqSegments starts with prefixSegments.
func pathHasPrefix(reqSegments, prefixSegments []string) bool {
	if len(reqSegments) < len(prefixSegments) {
		return false
	}
	for i, seg := range prefixSegments {
		if reqSegments[i] != seg {
			return false
		}
	}
	return true
}

func toSet(values []string, upper bool) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if upper {
			v = strings.ToUpper(v)
		}
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
