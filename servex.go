// Package servex provides a fast, extensible web framework for Go inspired
// by Express.js.
//
// This file contains the Server Core: the Engine type that owns route
// registration, middleware binding, the plugin subsystem, the event bus,
// and request dispatch (spec.md §4.4).
//
// Basic usage:
//
//	app := servex.New()
//	app.GET("/", func(c *servex.Context) {
//		c.String(200, "Hello, World!")
//	})
//	app.Listen(":8080", nil)
package servex

import (
	"net/http"
)

// Engine is the main servex application instance. It implements
// http.Handler and coordinates routing, middleware execution, the plugin
// subsystem, the event bus, and the HTTP server lifecycle.
type Engine struct {
	matcher Matcher
	events  *EventBus
	plugins *PluginManager

	globalMiddlewares []Handler
	errorHandlers     []ErrorHandlerFunc

	globals map[string]interface{}
	env     Env

	basePath string
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMatcher overrides the default matching backend. Applications that
// need strict trie priority semantics or a dense compacted radix table can
// select TrieMatcher/RadixMatcher here; the default is RegexpMatcher, per
// spec.md §4.1.c "this variant... is the recommended default".
func WithMatcher(m Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithEnv supplies the Env view Context.Env() returns.
func WithEnv(env Env) Option {
	return func(e *Engine) { e.env = env }
}

// WithGlobals supplies the server-wide map Context.Globals() reads from.
// The map is shared, not copied — spec.md §5 leaves its synchronization
// to the application's own convention ("no framework-level lock").
func WithGlobals(globals map[string]interface{}) Option {
	return func(e *Engine) { e.globals = globals }
}

// New creates a new Engine with default configuration: the precompiled
// regexp matcher, an empty event bus, and an empty plugin manager.
func New(opts ...Option) *Engine {
	e := &Engine{
		matcher: NewRegexpMatcher(),
		events:  NewEventBus(),
		plugins: NewPluginManager(),
		globals: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.globals == nil {
		e.globals = make(map[string]interface{})
	}
	return e
}

// Events exposes the Engine's event bus so applications can subscribe to
// server:request/server:response directly, without a plugin.
func (e *Engine) Events() *EventBus {
	return e.events
}

// RegisterPlugin adds a plugin to the Engine's plugin manager. Plugins
// must be registered before the first request is dispatched; OnInit runs
// for every registered plugin, in registration order, before that first
// request's handlers run (Invariant I6).
func (e *Engine) RegisterPlugin(p Plugin) *Engine {
	e.plugins.Register(p)
	return e
}

// Use registers method-agnostic middleware that applies to every route,
// present and future, matching spec.md §4.4 "use(path?, ...handlers) binds...
// at path (default /)" — realized as the matcher's "*" global pattern (the
// one pattern all three backends apply to every node rather than a single
// path). It also records the middleware for the unmatched-request path,
// which has no node to walk.
func (e *Engine) Use(handlers ...Handler) *Engine {
	e.globalMiddlewares = append(e.globalMiddlewares, handlers...)
	e.matcher.PushMiddlewares("*", handlers)
	return e
}

// UseAt attaches middleware at a specific path or subtree. pattern
// follows spec.md §4.1's pushMiddlewares rules: "*" is global,
// a trailing "*" attaches to the subtree rooted at the prefix, and any
// other pattern attaches to the exact node, creating it if absent.
func (e *Engine) UseAt(pattern string, handlers ...Handler) *Engine {
	e.matcher.PushMiddlewares(pattern, handlers)
	return e
}

// UseError registers an error handler invoked after the Chain Executor has
// already produced a response, for logging/transforming the recorded
// error (teacher's UseError hook; SPEC_FULL §3).
func (e *Engine) UseError(handlers ...ErrorHandlerFunc) *Engine {
	e.errorHandlers = append(e.errorHandlers, handlers...)
	return e
}

func (e *Engine) register(method, pattern string, handlers []Handler) *Engine {
	paths, err := expandOptionalPatterns(joinPath(e.basePath, pattern))
	if err != nil {
		panic(err)
	}
	for _, p := range paths {
		if err := e.matcher.Add(method, p, handlers); err != nil {
			panic(err)
		}
	}
	return e
}

func (e *Engine) GET(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodGet, pattern, handlers)
}
func (e *Engine) POST(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodPost, pattern, handlers)
}
func (e *Engine) PUT(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodPut, pattern, handlers)
}
func (e *Engine) DELETE(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodDelete, pattern, handlers)
}
func (e *Engine) PATCH(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodPatch, pattern, handlers)
}
func (e *Engine) HEAD(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodHead, pattern, handlers)
}
func (e *Engine) OPTIONS(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodOptions, pattern, handlers)
}
func (e *Engine) TRACE(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodTrace, pattern, handlers)
}
func (e *Engine) CONNECT(pattern string, handlers ...Handler) *Engine {
	return e.register(http.MethodConnect, pattern, handlers)
}

// All registers handlers under the ALL pseudo-method, matched only when no
// route registered for the request's exact method matches (spec.md §6).
func (e *Engine) All(pattern string, handlers ...Handler) *Engine {
	return e.register(methodAll, pattern, handlers)
}

// Route is a generic registration entry point matching spec.md §6's
// "Registrations starting with a leading method token... are split by the
// first space"; a pattern with no method token registers under ALL.
func (e *Engine) Route(pattern string, handlers ...Handler) *Engine {
	method, path := splitMethodToken(pattern)
	return e.register(method, path, handlers)
}

// Group creates a Router scoped to prefix, for organizing related routes
// and applying group-specific middleware (spec.md §4.4, teacher's
// Engine.Route/Router.Group shape).
func (e *Engine) Group(prefix string) *Router {
	return &Router{engine: e, prefix: joinPath(e.basePath, prefix)}
}

// defaultNotFoundHandler is the Chain Executor's defaultHandler: it runs
// only if no handler in the matched (or global) chain committed a
// response, per spec.md §4.2.
func defaultNotFoundHandler(c *Context) {
	c.commit(notFoundResponse())
}

// ServeHTTP implements http.Handler. It starts the plugin subsystem (once)
// and then either dispatches the request immediately or queues it behind
// plugin initialization, per spec.md §4.4's plugin-init barrier.
func (e *Engine) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	e.plugins.Start(e)
	e.plugins.Dispatch(func() {
		e.dispatch(w, req)
	})
}

func (e *Engine) dispatch(w http.ResponseWriter, req *http.Request) {
	_, pathname, search, hash := splitRequestTarget(req.URL.RequestURI())

	matched, ok := e.matcher.Match(req.Method, pathname)

	var handlers []Handler
	var params map[string]string
	routeID := pathname
	if ok {
		handlers = make([]Handler, 0, len(matched.Middlewares)+len(matched.Data))
		handlers = append(handlers, matched.Middlewares...)
		handlers = append(handlers, matched.Data...)
		params = matched.Params
		routeID = matched.MatchedPath
	} else {
		handlers = append(handlers, e.globalMiddlewares...)
		params = map[string]string{}
	}

	rc := RequestContext{
		RouteID: routeID,
		Params:  params,
		Query:   search,
		Globals: e.globals,
		Path:    pathname,
	}
	e.events.Emit(EventServerRequest, rc, req)

	c := NewContext(w, req, e, params, search, hash)
	c.runChain(handlers, defaultNotFoundHandler)

	if c.err != nil && len(e.errorHandlers) > 0 {
		for _, h := range e.errorHandlers {
			h(c.err, c)
		}
	}

	e.events.Emit(EventServerResponse, rc, Response{Status: c.status})

	c.release()
}

// Shutdown disposes every Ready plugin's Disposer in reverse registration
// order (spec.md §3, §4.5). It does not stop an http.Server; callers
// using Listen should call Shutdown after the server itself stops
// accepting connections.
func (e *Engine) Shutdown() {
	e.plugins.Shutdown()
}

// Listen starts an HTTP server on addr. cb, if non-nil, runs after the
// server is configured but before it starts accepting connections. This
// is a blocking call.
func (e *Engine) Listen(addr string, cb func()) error {
	server := &http.Server{Addr: addr, Handler: e}
	if cb != nil {
		cb()
	}
	return server.ListenAndServe()
}

// ListenTLS starts an HTTPS server on addr using certFile/keyFile.
func (e *Engine) ListenTLS(addr, certFile, keyFile string, cb func()) error {
	server := &http.Server{Addr: addr, Handler: e}
	if cb != nil {
		cb()
	}
	return server.ListenAndServeTLS(certFile, keyFile)
}
