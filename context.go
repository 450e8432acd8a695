// Package servex provides a fast, extensible web framework for Go inspired
// by Express.js, retaining goxpress's API shape while generalizing its
// routing core into three interchangeable matching strategies, a plugin
// subsystem, and a strict cookie codec.
//
// This file contains the Context implementation: the per-request object
// that binds request parsing, parameter extraction, response composition,
// and cookie serialization together (spec.md §4.3).
package servex

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
)

// contextPool reduces GC pressure by reusing Context instances across
// requests, exactly as goxpress.contextPool did.
var contextPool = sync.Pool{
	New: func() interface{} {
		return &Context{
			locals: make(map[string]interface{}),
		}
	},
}

// Context represents the context of the current HTTP request. It wraps
// the http.Request and http.ResponseWriter and implements spec.md §4.3's
// contract: params/query access, lazy body parsing, response builders,
// cookie helpers, and per-request/per-server scratch maps.
//
// Context instances are pooled and must not be retained beyond the scope
// of a single request.
type Context struct {
	context.Context

	Request  *http.Request
	Response http.ResponseWriter

	engine *Engine

	params map[string]string
	query  url.Values
	hash   string

	// Chain Executor state (§4.2). handlers is the combined, ordered list
	// for this request; index is the currently-running handler's position
	// (-1 before the first handler runs); frameCalled[i] guards Invariant
	// I4 — at most one Next() per handler frame.
	handlers    []Handler
	index       int
	frameCalled []bool
	aborted     bool

	statusCodeWritten bool
	status            int
	err               error

	locals map[string]interface{}

	body parsedBody
}

// NewContext pulls a Context from the pool and initializes it for one
// request. Used internally by Engine.dispatch.
func NewContext(w http.ResponseWriter, req *http.Request, e *Engine, params map[string]string, query url.Values, hash string) *Context {
	c := contextPool.Get().(*Context)

	c.Context = req.Context()
	c.Request = req
	c.Response = w
	c.engine = e
	c.params = params
	c.query = query
	c.hash = hash

	c.index = -1
	c.aborted = false
	c.statusCodeWritten = false
	c.status = 0
	c.err = nil
	c.body = parsedBody{}

	return c
}

// release clears Context state and returns it to the pool.
func (c *Context) release() {
	for k := range c.locals {
		delete(c.locals, k)
	}
	c.Context = nil
	c.Request = nil
	c.Response = nil
	c.engine = nil
	c.params = nil
	c.query = nil
	c.hash = ""
	c.handlers = nil
	c.frameCalled = nil
	c.index = -1
	c.aborted = false
	c.statusCodeWritten = false
	c.status = 0
	c.err = nil
	c.body = parsedBody{}
	contextPool.Put(c)
}

// Param returns the single URL parameter with the given name, or "" if it
// was not captured for the matched route.
func (c *Context) Param(name string) string {
	return c.params[name]
}

// Params returns every captured URL parameter as a map.
func (c *Context) Params() map[string]string {
	return c.params
}

// Query returns the single query-string value for name, or "" if absent.
func (c *Context) Query(name string) string {
	return c.query.Get(name)
}

// QueryValues returns the full parsed query string (spec.md §4.3
// "query(name?) → single or URLSearchParams").
func (c *Context) QueryValues() url.Values {
	return c.query
}

// Hash returns the request URL's fragment, if the transport surfaced one
// (net/http strips fragments before the server ever sees them, so this is
// normally empty; it is retained for parity with spec.md §3's Matched
// Route shape and for adapters that pass a raw target through Match).
func (c *Context) Hash() string {
	return c.hash
}

// runChain drives handlers through the Chain Executor and falls back to
// defaultHandler if no response was committed by the time the chain
// unwinds (spec.md §4.2).
func (c *Context) runChain(handlers []Handler, defaultHandler Handler) {
	c.handlers = handlers
	c.frameCalled = make([]bool, len(handlers))
	c.index = -1

	c.runRecovered(func() {
		c.dispatch(0)
	})

	if !c.statusCodeWritten {
		c.runRecovered(func() {
			defaultHandler(c)
		})
	}
}

// dispatch invokes handlers[i], restoring the caller's index once it
// returns so nested Next() calls correctly identify their own frame. It is
// the recursive rendering of spec.md §9's handler invocation note —
// recursion happens through the Go call stack via Next(), not through an
// iterative loop or an explicit continuation object.
func (c *Context) dispatch(i int) {
	if c.aborted || i >= len(c.handlers) {
		return
	}
	prev := c.index
	c.index = i
	c.handlers[i](c)
	c.index = prev
}

// Next continues the chain by invoking the handler immediately after the
// one currently running. A handler that never calls Next short-circuits
// the chain: later handlers do not run, but every handler already on the
// call stack still runs its post-Next code (spec.md §4.2 ordering
// guarantee, Scenario S4). Calling Next twice from the same handler frame
// is a protocol violation (Invariant I4) and panics with a sentinel the
// Chain Executor's recovery wrapper turns into a 500.
func (c *Context) Next() {
	i := c.index
	if i < 0 || i >= len(c.frameCalled) {
		return
	}
	if c.frameCalled[i] {
		panic(nextCalledTwicePanic{})
	}
	c.frameCalled[i] = true
	c.dispatch(i + 1)
}

// Abort prevents any pending handlers — including ones that would have
// been reached via a subsequent Next() — from running. Earlier handlers'
// post-Next code still executes as the call stack unwinds.
func (c *Context) Abort() {
	c.aborted = true
}

// IsAborted reports whether Abort was called during this request.
func (c *Context) IsAborted() bool {
	return c.aborted
}

// Error records err for the Engine's registered error handlers, invoked
// after the chain has produced a response (teacher's UseError hook,
// generalized per SPEC_FULL §3 "Error handling").
func (c *Context) Error(err error) {
	c.err = err
}

// runRecovered executes fn, recovering HttpException/Redirect sentinels
// (committed verbatim), the NextCalledTwice sentinel, and any other panic
// (logged, committed as 500) — spec.md §4.2/§4.7.
func (c *Context) runRecovered(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			var resp Response
			switch v := r.(type) {
			case Responder:
				resp = v.Response()
				if _, ok := v.(nextCalledTwicePanic); ok {
					logError(fmt.Errorf("next called twice: %w", ErrNextCalledTwice))
				}
			case error:
				logError(v)
				resp = internalErrorResponse()
				c.err = v
			default:
				err := fmt.Errorf("%v", v)
				logError(err)
				resp = internalErrorResponse()
				c.err = err
			}
			c.commit(resp)
		}
	}()
	fn()
}

// commit writes resp to the wire if nothing has been written yet
// (Invariant I5 — the first response wins).
func (c *Context) commit(resp Response) {
	if c.statusCodeWritten {
		return
	}
	c.statusCodeWritten = true
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.status = status
	writeResponse(c.Response, resp)
}

// Status returns the status of the most recently committed response, or 0
// if none has been committed yet.
func (c *Context) Status() int {
	return c.status
}

// Locals stores per-request scratch data, available to downstream
// handlers for the lifetime of this request only.
func (c *Context) Locals(key string) interface{} {
	return c.locals[key]
}

// SetLocal stores value under key in the per-request scratch map.
func (c *Context) SetLocal(key string, value interface{}) {
	c.locals[key] = value
}

// Globals returns a read-only view onto the server-wide globals map
// bound at Engine construction (spec.md §4.3 "globals(key) — read-only
// view of server-wide map").
func (c *Context) Globals(key string) interface{} {
	if c.engine == nil {
		return nil
	}
	return c.engine.globals[key]
}

// Env returns the process-level configuration view injected at Engine
// construction (spec.md §4.3 "env() — process-level configuration view").
func (c *Context) Env() Env {
	if c.engine == nil {
		return nil
	}
	return c.engine.env
}

// SetHeaders appends to the response's header accumulator. Array values
// are comma-joined, matching spec.md §4.3. Because Context writes
// directly through http.ResponseWriter, the accumulator IS
// c.Response.Header() until the first builder call commits a status —
// this is the Go rendering of "a Response whose headers may be appended
// before final body is set."
func (c *Context) SetHeaders(headers map[string]interface{}) *Context {
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			c.Response.Header().Add(k, val)
		case []string:
			c.Response.Header().Add(k, joinComma(val))
		default:
			c.Response.Header().Add(k, fmt.Sprintf("%v", val))
		}
	}
	return c
}

func joinComma(vs []string) string {
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// SetCookie appends one Set-Cookie header via the Cookie Codec.
func (c *Context) SetCookie(name, value string, opts *CookieOptions) error {
	header, err := SerializeCookie(name, value, opts)
	if err != nil {
		return err
	}
	c.Response.Header().Add("Set-Cookie", header)
	return nil
}

// SetCookies appends one Set-Cookie header per entry in values, all
// sharing the same options.
func (c *Context) SetCookies(values map[string]string, opts *CookieOptions) error {
	for name, value := range values {
		if err := c.SetCookie(name, value, opts); err != nil {
			return err
		}
	}
	return nil
}

// Cookie returns the named cookie from the request's Cookie header, or ""
// if absent.
func (c *Context) Cookie(name string) string {
	header := c.Request.Header.Get("Cookie")
	if header == "" {
		return ""
	}
	return ParseCookies(header)[name]
}

// JSON serializes obj and commits a Response with Content-Type
// application/json, overridable via a prior SetHeaders call.
func (c *Context) JSON(status int, obj interface{}) *Context {
	body, err := jsonMarshal(obj)
	if err != nil {
		c.commit(internalErrorResponse())
		return c
	}
	c.setDefaultHeader("Content-Type", contentTypeJSON)
	c.commit(Response{Status: status, StatusText: http.StatusText(status), Body: body})
	return c
}

// String writes a formatted plain-text response.
func (c *Context) String(status int, format string, values ...interface{}) *Context {
	c.setDefaultHeader("Content-Type", contentTypeText)
	c.commit(Response{Status: status, StatusText: http.StatusText(status), Body: []byte(fmt.Sprintf(format, values...))})
	return c
}

// Text is an alias for String kept to match spec.md §4.3's naming.
func (c *Context) Text(status int, text string) *Context {
	return c.String(status, "%s", text)
}

// HTML commits an HTML response.
func (c *Context) HTML(status int, html string) *Context {
	c.setDefaultHeader("Content-Type", contentTypeHTML)
	c.commit(Response{Status: status, StatusText: http.StatusText(status), Body: []byte(html)})
	return c
}

// Redirect commits a redirect Response with the given Location and status
// (defaulting to 302, per spec.md §4.3).
func (c *Context) Redirect(location string, status ...int) *Context {
	code := http.StatusFound
	if len(status) > 0 && status[0] != 0 {
		code = status[0]
	}
	c.Response.Header().Set("Location", location)
	c.commit(Response{Status: code, StatusText: http.StatusText(code)})
	return c
}

// Stream commits a Response whose body is read from r as it is copied to
// the wire, defaulting to status 200.
func (c *Context) Stream(r io.Reader, status int, headers map[string]string) *Context {
	if status == 0 {
		status = http.StatusOK
	}
	for k, v := range headers {
		c.Response.Header().Set(k, v)
	}
	c.commit(Response{Status: status, StatusText: http.StatusText(status), BodyReader: r})
	return c
}

// setDefaultHeader sets k to v on the response accumulator only if the
// caller has not already set it (e.g. via SetHeaders before calling a
// builder), matching spec.md §4.3's "supplies the canonical Content-Type
// for the format (overridable)".
func (c *Context) setDefaultHeader(k, v string) {
	if c.Response.Header().Get(k) == "" {
		c.Response.Header().Set(k, v)
	}
}

// logError is the single indirection point the Chain Executor's recovery
// wrapper uses to report an unhandled panic/error, matching the teacher's
// Recover() middleware's own log.Printf call.
func logError(err error) {
	log.Printf("servex: %v", err)
}
