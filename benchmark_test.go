package servex

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func standardHTTPServer() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("Hello, World!"))
	})
	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/user/")
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(200)
		json.NewEncoder(w).Encode(map[string]string{"user_id": id})
	})
	return mux
}

func BenchmarkStandardLibrary_Simple(b *testing.B) {
	handler := standardHTTPServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkStandardLibrary_Params(b *testing.B) {
	handler := standardHTTPServer()
	req := httptest.NewRequest(http.MethodGet, "/user/42", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func benchEngine(m Matcher) *Engine {
	app := New(WithMatcher(m))
	app.GET("/", func(c *Context) { c.String(200, "Hello, World!") })
	app.GET("/user/:id", func(c *Context) { c.JSON(200, map[string]string{"user_id": c.Param("id")}) })
	return app
}

func BenchmarkServex_TrieSimple(b *testing.B) {
	app := benchEngine(NewTrieMatcher())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_RadixSimple(b *testing.B) {
	app := benchEngine(NewRadixMatcher())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_RegexpSimple(b *testing.B) {
	app := benchEngine(NewRegexpMatcher())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_TrieParams(b *testing.B) {
	app := benchEngine(NewTrieMatcher())
	req := httptest.NewRequest(http.MethodGet, "/user/42", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_RadixParams(b *testing.B) {
	app := benchEngine(NewRadixMatcher())
	req := httptest.NewRequest(http.MethodGet, "/user/42", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_RegexpParams(b *testing.B) {
	app := benchEngine(NewRegexpMatcher())
	req := httptest.NewRequest(http.MethodGet, "/user/42", nil)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_MiddlewareChain(b *testing.B) {
	app := New()
	for i := 0; i < 5; i++ {
		app.Use(func(c *Context) { c.Next() })
	}
	app.GET("/chain", func(c *Context) { c.String(200, "ok") })
	req := httptest.NewRequest(http.MethodGet, "/chain", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkServex_LargeRouteSet(b *testing.B) {
	app := New()
	for i := 0; i < 500; i++ {
		app.GET("/route"+strconv.Itoa(i), func(c *Context) { c.String(200, "ok") })
	}
	req := httptest.NewRequest(http.MethodGet, "/route250", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		app.ServeHTTP(httptest.NewRecorder(), req)
	}
}
