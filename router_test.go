package servex

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouter_GroupPrefixesRoutes(t *testing.T) {
	app := New()
	v1 := app.Group("/api/v1")
	v1.GET("/users", func(c *Context) { c.String(200, "v1-users") })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Body.String() != "v1-users" {
		t.Errorf("body = %q, want %q", w.Body.String(), "v1-users")
	}
}

func TestRouter_NestedGroups(t *testing.T) {
	app := New()
	api := app.Group("/api")
	protected := api.Group("/protected")
	protected.GET("/admin", func(c *Context) { c.String(200, "admin") })

	req := httptest.NewRequest(http.MethodGet, "/api/protected/admin", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Body.String() != "admin" {
		t.Errorf("body = %q, want %q", w.Body.String(), "admin")
	}
}

func TestRouter_NestedGroupMiddlewareDoesNotLeakToSiblings(t *testing.T) {
	app := New()
	api := app.Group("/api")

	public := api.Group("/public")
	public.GET("/health", func(c *Context) { c.String(200, "ok") })

	var protectedMWRan bool
	protected := api.Group("/protected")
	protected.Use(func(c *Context) {
		protectedMWRan = true
		c.Next()
	})
	protected.GET("/admin", func(c *Context) { c.String(200, "admin") })

	req := httptest.NewRequest(http.MethodGet, "/api/public/health", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if protectedMWRan {
		t.Error("expected protected group's middleware to not run for the public sibling route")
	}
}

func TestRouter_AllMethodsDelegateToEngine(t *testing.T) {
	app := New()
	g := app.Group("/g")

	g.GET("/r", func(c *Context) { c.String(200, "GET") })
	g.POST("/r", func(c *Context) { c.String(200, "POST") })
	g.PUT("/r", func(c *Context) { c.String(200, "PUT") })
	g.DELETE("/r", func(c *Context) { c.String(200, "DELETE") })
	g.PATCH("/r", func(c *Context) { c.String(200, "PATCH") })

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/g/r", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)
		if w.Body.String() != method {
			t.Errorf("method %s: body = %q", method, w.Body.String())
		}
	}
}

func TestJoinPath(t *testing.T) {
	cases := []struct{ prefix, pattern, want string }{
		{"", "/a", "/a"},
		{"/", "/a", "/a"},
		{"/api", "/users", "/api/users"},
		{"/api/", "/users", "/api/users"},
		{"/api", "", "/api"},
		{"/api", "users", "/api/users"},
	}
	for _, c := range cases {
		if got := joinPath(c.prefix, c.pattern); got != c.want {
			t.Errorf("joinPath(%q, %q) = %q, want %q", c.prefix, c.pattern, got, c.want)
		}
	}
}

func TestSplitMethodToken(t *testing.T) {
	method, path := splitMethodToken("GET /users")
	if method != "GET" || path != "/users" {
		t.Errorf("got (%q, %q), want (GET, /users)", method, path)
	}

	method, path = splitMethodToken("/no-method")
	if method != methodAll || path != "/no-method" {
		t.Errorf("got (%q, %q), want (%q, /no-method)", method, path, methodAll)
	}
}
