// Package servex provides a fast, extensible web framework for Go inspired
// by Express.js.
//
// This file contains Router: a route group bound to an Engine and a path
// prefix, for organizing related routes and applying group-scoped
// middleware (spec.md §4.4, teacher's Engine.Route/Router.Group shape).
package servex

import "strings"

// Router is a view onto an Engine scoped to a path prefix. All
// registration methods delegate to the owning Engine with the prefix
// joined in; Router itself holds no route data of its own.
type Router struct {
	engine *Engine
	prefix string
}

// Group creates a nested Router under this one's prefix.
func (r *Router) Group(prefix string) *Router {
	return &Router{engine: r.engine, prefix: joinPath(r.prefix, prefix)}
}

// Use attaches middleware at this group's prefix node — every route
// registered under the group (now or later) collects it via the matcher's
// root-to-leaf walk, and every route in the subtree beneath it does too,
// since PushMiddlewares creates the node if it does not already exist and
// the walk always passes through it.
func (r *Router) Use(handlers ...Handler) *Router {
	r.engine.UseAt(joinPath(r.prefix, "*"), handlers...)
	return r
}

func (r *Router) GET(pattern string, handlers ...Handler) *Router {
	r.engine.register("GET", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) POST(pattern string, handlers ...Handler) *Router {
	r.engine.register("POST", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) PUT(pattern string, handlers ...Handler) *Router {
	r.engine.register("PUT", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) DELETE(pattern string, handlers ...Handler) *Router {
	r.engine.register("DELETE", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) PATCH(pattern string, handlers ...Handler) *Router {
	r.engine.register("PATCH", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) HEAD(pattern string, handlers ...Handler) *Router {
	r.engine.register("HEAD", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) OPTIONS(pattern string, handlers ...Handler) *Router {
	r.engine.register("OPTIONS", joinPath(r.prefix, pattern), handlers)
	return r
}
func (r *Router) All(pattern string, handlers ...Handler) *Router {
	r.engine.register(methodAll, joinPath(r.prefix, pattern), handlers)
	return r
}

// joinPath concatenates a prefix and a pattern into one clean path,
// collapsing the double slash that would otherwise appear at the seam.
func joinPath(prefix, pattern string) string {
	if prefix == "" || prefix == "/" {
		if pattern == "" {
			return "/"
		}
		if !strings.HasPrefix(pattern, "/") {
			return "/" + pattern
		}
		return pattern
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if pattern == "" || pattern == "/" {
		return prefix
	}
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	return prefix + pattern
}

// splitMethodToken splits a "METHOD /path" registration string on its
// first space (spec.md §6). A pattern with no recognized leading method
// token registers under the ALL pseudo-method.
func splitMethodToken(pattern string) (method, path string) {
	if idx := strings.IndexByte(pattern, ' '); idx > 0 {
		candidate := strings.ToUpper(pattern[:idx])
		for _, m := range httpMethods() {
			if m == candidate {
				return candidate, pattern[idx+1:]
			}
		}
	}
	return methodAll, pattern
}
