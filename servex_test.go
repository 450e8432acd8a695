package servex

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEngine_ParamExtraction(t *testing.T) {
	app := New()
	app.GET("/users/:id/posts/:postID", func(c *Context) {
		c.JSON(200, map[string]string{
			"id":   c.Param("id"),
			"post": c.Param("postID"),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/users/7/posts/99", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestEngine_StaticBeatsDynamicPrecedence(t *testing.T) {
	app := New()
	app.GET("/users/:id", func(c *Context) { c.String(200, "dynamic") })
	app.GET("/users/me", func(c *Context) { c.String(200, "static") })

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Body.String() != "static" {
		t.Errorf("body = %q, want %q", w.Body.String(), "static")
	}
}

func TestEngine_WildcardTailCapturesRest(t *testing.T) {
	app := New()
	app.GET("/static/*filepath", func(c *Context) {
		c.String(200, c.Param("filepath"))
	})

	req := httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Body.String() != "css/app.css" {
		t.Errorf("body = %q, want %q", w.Body.String(), "css/app.css")
	}
}

func TestEngine_GlobalMiddlewareAppliesToRoutesRegisteredLater(t *testing.T) {
	var ran bool
	app := New()
	app.Use(func(c *Context) {
		ran = true
		c.Next()
	})
	app.GET("/late", func(c *Context) { c.String(200, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/late", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if !ran {
		t.Error("expected global middleware registered before the route to run for it")
	}
}

func TestEngine_GroupMiddlewareScoped(t *testing.T) {
	app := New()

	var globalRan, groupRan bool
	app.Use(func(c *Context) { globalRan = true; c.Next() })

	api := app.Group("/api")
	api.Use(func(c *Context) { groupRan = true; c.Next() })
	api.GET("/thing", func(c *Context) { c.String(200, "ok") })

	app.GET("/outside", func(c *Context) { c.String(200, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	if !globalRan || !groupRan {
		t.Errorf("globalRan=%v groupRan=%v, want both true", globalRan, groupRan)
	}

	globalRan, groupRan = false, false
	req = httptest.NewRequest(http.MethodGet, "/outside", nil)
	w = httptest.NewRecorder()
	app.ServeHTTP(w, req)
	if !globalRan {
		t.Error("expected global middleware to still run outside the group")
	}
	if groupRan {
		t.Error("expected group middleware to not run outside its prefix")
	}
}

func TestEngine_CORSPreflightReturns204(t *testing.T) {
	app := New()
	app.Use(CORS(CORSConfig{AllowAllOrigins: true}))
	app.GET("/resource", func(c *Context) { c.String(200, "ok") })

	req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", w.Header().Get("Access-Control-Allow-Origin"), "*")
	}
}

func TestEngine_RouteOverwritesOnReRegistration(t *testing.T) {
	app := New()
	app.GET("/x", func(c *Context) { c.String(200, "first") })
	app.GET("/x", func(c *Context) { c.String(200, "second") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if w.Body.String() != "second" {
		t.Errorf("body = %q, want %q (re-registration should overwrite)", w.Body.String(), "second")
	}
}

func TestEngine_AllPseudoMethodMatchesAnyMethod(t *testing.T) {
	app := New()
	app.All("/any", func(c *Context) { c.String(200, c.Request.Method) })

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		req := httptest.NewRequest(method, "/any", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, req)
		if w.Body.String() != method {
			t.Errorf("method %s: body = %q", method, w.Body.String())
		}
	}
}

func TestEngine_EventsEmittedForEachRequest(t *testing.T) {
	app := New()

	var reqSeen, respSeen bool
	app.Events().On(EventServerRequest, func(rc RequestContext, payload interface{}) {
		reqSeen = true
	})
	app.Events().On(EventServerResponse, func(rc RequestContext, payload interface{}) {
		respSeen = true
	})

	app.GET("/evt", func(c *Context) { c.String(200, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/evt", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if !reqSeen || !respSeen {
		t.Errorf("reqSeen=%v respSeen=%v, want both true", reqSeen, respSeen)
	}
}

func TestEngine_ErrorHandlerInvokedAfterCommit(t *testing.T) {
	app := New()

	var gotErr error
	app.UseError(func(err error, c *Context) {
		gotErr = err
	})
	app.GET("/boom", func(c *Context) {
		c.Error(someError{})
		c.JSON(500, map[string]string{"error": "boom"})
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)

	if gotErr == nil {
		t.Fatal("expected error handler to be invoked")
	}
}

type someError struct{}

func (someError) Error() string { return "boom" }
