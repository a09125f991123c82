package router

import (
	"net/http"
	"testing"
	"time"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := New([]config.RouteConfig{
		{Name: "catalog", PathPrefix: "/catalog", Target: "http://catalog:8080", StripPrefix: true, PublicRead: true},
		{Name: "catalog-admin", PathPrefix: "/catalog/admin", Target: "http://catalog-admin:8080", RequiresAuth: true},
		{Name: "order", PathPrefix: "/order", Target: "http://order:8080", RequiresAuth: true,
			RequiredRoles: []string{"admin"}, RoleMethods: []string{"delete"}, Timeout: 5 * time.Second},
		{Name: "root", PathPrefix: "/", Target: "http://web:8080"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return table
}

func TestTableMatch(t *testing.T) {
	table := testTable(t)

	tests := []struct {
		name      string
		path      string
		wantRoute string
	}{
		{"prefix root", "/catalog", "catalog"},
		{"prefix subpath", "/catalog/products/42", "catalog"},
		{"longest prefix wins", "/catalog/admin/products", "catalog-admin"},
		{"segment boundary", "/catalogue/items", "root"},
		{"trailing slash", "/order/", "order"},
		{"fallback to root", "/unknown/path", "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := table.Match(tt.path)
			if route == nil {
				t.Fatalf("expected match for %s", tt.path)
			}
			if route.Name != tt.wantRoute {
				t.Errorf("expected route %s, got %s", tt.wantRoute, route.Name)
			}
		})
	}
}

func TestTableNoMatch(t *testing.T) {
	table, err := New([]config.RouteConfig{
		{Name: "catalog", PathPrefix: "/catalog", Target: "http://catalog:8080"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if route := table.Match("/orders/1"); route != nil {
		t.Errorf("expected no match, got %s", route.Name)
	}
	if route := table.Match("/"); route != nil {
		t.Errorf("expected no match for /, got %s", route.Name)
	}
}

func TestTableInvalid(t *testing.T) {
	if _, err := New([]config.RouteConfig{{Name: "a", PathPrefix: "/a", Target: "::bad"}}); err == nil {
		t.Error("expected error for invalid target")
	}
	_, err := New([]config.RouteConfig{
		{Name: "a", PathPrefix: "/a", Target: "http://a"},
		{Name: "a", PathPrefix: "/b", Target: "http://b"},
	})
	if err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestForwardPath(t *testing.T) {
	table := testTable(t)

	tests := []struct {
		route string
		path  string
		want  string
	}{
		{"catalog", "/catalog/products/42", "/products/42"},
		{"catalog", "/catalog", "/"},
		{"catalog", "/catalog/", "/"},
		{"catalog", "/catalog/products/", "/products/"},
		{"catalog", "/catalog/products/42/reviews/", "/products/42/reviews/"},
		{"order", "/order/5", "/order/5"}, // strip_prefix disabled
		{"root", "/anything/here", "/anything/here"},
	}

	for _, tt := range tests {
		t.Run(tt.route+tt.path, func(t *testing.T) {
			got := table.Get(tt.route).ForwardPath(tt.path)
			if got != tt.want {
				t.Errorf("ForwardPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestStripRoutePrefix(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    string
	}{
		{"/api", "/api/users", "/users"},
		{"/api/v1", "/api/v1/users/1", "/users/1"},
		{"/api", "/api", "/"},
		{"/", "/users", "/users"},
		{"/", "/users/", "/users/"},
		{"/api", "/api/users/", "/users/"},
		{"/api/", "/api/v2/", "/v2/"},
		{"/api", "/apiv2/users", "/apiv2/users"},
	}
	for _, tt := range tests {
		if got := stripRoutePrefix(tt.pattern, tt.path); got != tt.want {
			t.Errorf("stripRoutePrefix(%q, %q) = %q, want %q", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestAuthRequiredFor(t *testing.T) {
	table := testTable(t)
	catalog := table.Get("catalog")
	order := table.Get("order")
	root := table.Get("root")

	tests := []struct {
		route  *Route
		method string
		want   bool
	}{
		{catalog, http.MethodGet, false},
		{catalog, http.MethodHead, false},
		{catalog, http.MethodPost, true},
		{catalog, http.MethodDelete, true},
		{order, http.MethodGet, true},
		{root, http.MethodPost, false},
	}

	for _, tt := range tests {
		if got := tt.route.AuthRequiredFor(tt.method); got != tt.want {
			t.Errorf("%s.AuthRequiredFor(%s) = %v, want %v", tt.route.Name, tt.method, got, tt.want)
		}
	}
}

func TestRolesRequiredFor(t *testing.T) {
	table := testTable(t)
	order := table.Get("order")

	if roles := order.RolesRequiredFor(http.MethodDelete); !roles["admin"] {
		t.Errorf("expected admin for DELETE, got %v", roles)
	}
	if roles := order.RolesRequiredFor(http.MethodGet); roles != nil {
		t.Errorf("expected no roles for GET, got %v", roles)
	}
	if roles := table.Get("catalog").RolesRequiredFor(http.MethodDelete); roles != nil {
		t.Errorf("expected no roles for catalog, got %v", roles)
	}

	unscoped, err := New([]config.RouteConfig{
		{Name: "admin", PathPrefix: "/admin", Target: "http://admin", RequiredRoles: []string{"ops", "admin"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	route := unscoped.Get("admin")
	if roles := route.RolesRequiredFor(http.MethodGet); len(roles) != 2 {
		t.Errorf("expected roles for all methods, got %v", roles)
	}
	if got := route.Roles(); got[0] != "admin" || got[1] != "ops" {
		t.Errorf("expected sorted roles, got %v", got)
	}
}

func TestEffectiveTimeout(t *testing.T) {
	table := testTable(t)
	if got := table.Get("order").EffectiveTimeout(30 * time.Second); got != 5*time.Second {
		t.Errorf("expected route timeout 5s, got %v", got)
	}
	if got := table.Get("catalog").EffectiveTimeout(30 * time.Second); got != 30*time.Second {
		t.Errorf("expected default 30s, got %v", got)
	}
}

func TestRoutesOrder(t *testing.T) {
	routes := testTable(t).Routes()
	want := []string{"catalog", "catalog-admin", "order", "root"}
	if len(routes) != len(want) {
		t.Fatalf("expected %d routes, got %d", len(want), len(routes))
	}
	for i, r := range routes {
		if r.Name != want[i] {
			t.Errorf("routes[%d] = %s, want %s", i, r.Name, want[i])
		}
	}
}

func TestServiceIDDefaultsToName(t *testing.T) {
	table, err := New([]config.RouteConfig{
		{Name: "cart", PathPrefix: "/cart", Target: "http://cart"},
		{Name: "pay", PathPrefix: "/pay", Target: "http://pay", ServiceID: "payment-service"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id := table.Get("cart").ServiceID; id != "cart" {
		t.Errorf("expected cart, got %s", id)
	}
	if id := table.Get("pay").ServiceID; id != "payment-service" {
		t.Errorf("expected payment-service, got %s", id)
	}
}
