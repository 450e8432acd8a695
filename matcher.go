// Package servex provides a fast, extensible web framework for Go inspired
// by Express.js, retaining goxpress's API shape while generalizing its
// routing core into three interchangeable matching strategies.
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
	"errors"
	"net/url"
	"strings"
	"unsafe"
)

// handlerIdentity returns a stable identity for a Handler value, used to
// detect the "same function" case when deduplicating middleware. It is the
// address of the func value itself, so one value attached to several nodes
// counts once, while separate closures made from the same literal differ.
func handlerIdentity(h Handler) uintptr {
	return *(*uintptr)(unsafe.Pointer(&h))
}

// Handler processes a request. It may read from and write to the Context,
// call c.Next() to continue the chain, or commit a response and return
// without calling Next — both are valid, per the chain executor's
// short-circuit semantics.
type Handler func(*Context)

// ErrorHandlerFunc processes an error recorded via c.Error(err), or a panic
// recovered by Recover() or by the Chain Executor. Error handlers run after the chain has already
// produced (or failed to produce) a response.
type ErrorHandlerFunc func(error, *Context)

// Registration-time errors. Add() returns these; applications that call Add
// after Seal() (regexp backend) or register a wildcard in a non-terminal
// position should check for them with errors.Is.
var (
	// ErrMatcherSealed is returned by Add() once the regexp matcher has
	// been sealed; the trie and radix backends never return it.
	ErrMatcherSealed = errors.New("servex: matcher is sealed")
	// ErrUnsupportedPath is returned for a path the matcher cannot parse,
	// e.g. an optional segment followed by a required one.
	ErrUnsupportedPath = errors.New("servex: unsupported path pattern")
	// ErrWildcardMisplacement is returned when a registration would place
	// a segment after an existing wildcard terminal.
	ErrWildcardMisplacement = errors.New("servex: wildcard must be the final segment")
	// ErrDuplicateRoute is informational: the spec treats re-registration
	// of (method, path) as an overwrite (Invariant I1), not a hard error,
	// so this is exposed for callers that want to detect it themselves.
	ErrDuplicateRoute = errors.New("servex: duplicate route for method and path")
	// ErrNextCalledTwice is the error logged when a single handler frame
	// invokes Context.Next more than once (Invariant I4); Next panics and
	// the Chain Executor answers the request with a 500.
	ErrNextCalledTwice = errors.New("servex: next() called twice in the same handler frame")
)

// RouteDescriptor is the tuple recorded at registration: a method, a raw
// path pattern, and the ordered handler list registered for it.
type RouteDescriptor struct {
	Method string
	Path   string
	Data   []Handler
}

// MatchedRoute is the result of a successful Match call.
type MatchedRoute struct {
	Method       string
	URLInput     string
	MatchedPath  string
	Params       map[string]string
	SearchParams url.Values
	Hash         string
	Data         []Handler
	Middlewares  []Handler
}

// Matcher is the common contract all three route-matching backends satisfy.
// Applications select one at Engine construction time (WithMatcher); the
// rest of the framework only ever depends on this interface.
type Matcher interface {
	// Add registers data (an ordered handler list) under (method, path).
	// Re-registration of the same (method, normalized path) overwrites the
	// previous handlers (Invariant I1).
	Add(method, path string, data []Handler) error

	// Match looks up (method, path) and returns the matched route and
	// whether a route was found. path may include a query string and
	// fragment; callers normally strip those before calling Match and
	// carry them separately, but Match tolerates either form.
	Match(method, path string) (MatchedRoute, bool)

	// Routes returns every registered route. The regexp backend lists them
	// in registration order; the trie and radix backends walk their maps,
	// so their order is not defined.
	Routes() []RouteDescriptor

	// PushMiddlewares attaches mw to the node(s) selected by pattern:
	//   - "*"  attaches to every node, present and future (global);
	//   - a pattern with a trailing "*" attaches to the subtree rooted at
	//     the prefix before it, recursively;
	//   - any other pattern attaches to the exact node, creating it if it
	//     does not already exist.
	PushMiddlewares(pattern string, mw []Handler)

	// Seal freezes the route table. For the trie and radix backends this
	// is a no-op that always succeeds; for the regexp backend it compiles
	// the alternation and makes subsequent Add calls fail with
	// ErrMatcherSealed. Match implicitly seals the regexp backend on its
	// first call if Seal was not already invoked.
	Seal() error
}

// segmentKind classifies one path segment.
type segmentKind int

const (
	segStatic segmentKind = iota
	segDynamic
	segWildcard
)

// segment is one "/"-delimited piece of a parsed path pattern.
type segment struct {
	kind     segmentKind
	value    string // literal text, or the captured/wildcard param name ("" for unnamed wildcard)
	optional bool   // true for a dynamic segment written as ":name?"
}

// splitPath trims exactly one leading and one trailing slash and splits the
// remainder on "/". A root path ("/" or "") yields a nil/empty segment list,
// per spec.md §4.1 Normalization.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// parseSegment classifies a single raw path segment.
func parseSegment(raw string) (segment, error) {
	switch {
	case raw == "":
		return segment{}, ErrUnsupportedPath
	case raw == "*":
		return segment{kind: segWildcard, value: ""}, nil
	case strings.HasPrefix(raw, "*"):
		return segment{kind: segWildcard, value: raw[1:]}, nil
	case strings.HasPrefix(raw, ":"):
		name := raw[1:]
		optional := false
		if strings.HasSuffix(name, "?") {
			optional = true
			name = strings.TrimSuffix(name, "?")
		}
		if name == "" {
			return segment{}, ErrUnsupportedPath
		}
		return segment{kind: segDynamic, value: name, optional: optional}, nil
	default:
		return segment{kind: segStatic, value: raw}, nil
	}
}

// parsePattern splits and classifies every segment of a path pattern,
// rejecting a wildcard that is not the final segment (Invariant I3) and an
// optional segment that precedes a required one — the spec's "optional
// parameter expansion should happen at registration time" rendered as a
// requirement that optional segments form a trailing run.
func parsePattern(path string) ([]segment, error) {
	raw := splitPath(path)
	segs := make([]segment, 0, len(raw))
	optionalSeen := false
	for i, r := range raw {
		s, err := parseSegment(r)
		if err != nil {
			return nil, err
		}
		if s.kind == segWildcard && i != len(raw)-1 {
			return nil, ErrWildcardMisplacement
		}
		if s.kind == segDynamic && s.optional {
			optionalSeen = true
		} else if optionalSeen {
			// a required/wildcard segment after an optional one
			return nil, ErrUnsupportedPath
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// expandOptionalPatterns expands trailing optional segments into the set of
// concrete registrations they represent, e.g. "/a/:x?/:y?" becomes
// ["/a", "/a/:x", "/a/:x/:y"]. A pattern with no optional segments expands
// to itself.
func expandOptionalPatterns(path string) ([]string, error) {
	segs, err := parsePattern(path)
	if err != nil {
		return nil, err
	}
	firstOptional := -1
	for i, s := range segs {
		if s.kind == segDynamic && s.optional {
			firstOptional = i
			break
		}
	}
	if firstOptional == -1 {
		return []string{path}, nil
	}

	out := make([]string, 0, len(segs)-firstOptional+1)
	for cut := firstOptional; cut <= len(segs); cut++ {
		parts := make([]string, 0, cut)
		for _, s := range segs[:cut] {
			switch s.kind {
			case segStatic:
				parts = append(parts, s.value)
			case segDynamic:
				parts = append(parts, ":"+s.value)
			case segWildcard:
				if s.value == "" {
					parts = append(parts, "*")
				} else {
					parts = append(parts, "*"+s.value)
				}
			}
		}
		out = append(out, "/"+strings.Join(parts, "/"))
	}
	return out, nil
}

// dedupeHandlers collapses duplicate entries (by function identity, via
// handlerIdentity) while preserving first-occurrence order. Used when
// collecting middleware along a matched path, per spec.md §4.1's
// "duplicates... are collapsed while preserving first-occurrence order".
func dedupeHandlers(in []Handler) []Handler {
	if len(in) < 2 {
		return in
	}
	seen := make(map[uintptr]struct{}, len(in))
	out := make([]Handler, 0, len(in))
	for _, h := range in {
		ptr := handlerIdentity(h)
		if _, ok := seen[ptr]; ok {
			continue
		}
		seen[ptr] = struct{}{}
		out = append(out, h)
	}
	return out
}

// reverseHandlers returns a new slice with in's order reversed. The
// backends do not call it: they record their descent root-to-leaf, so the
// collected middleware is already in execution order.
func reverseHandlers(in []Handler) []Handler {
	out := make([]Handler, len(in))
	for i, h := range in {
		out[len(in)-1-i] = h
	}
	return out
}

// methodAll is the internal key routes registered via Router.All (or a
// leading "ALL "/"all " method token) are stored under. spec.md §6: "ALL
// matching any" — a method-specific registration always takes precedence
// over one registered under methodAll at the same path.
const methodAll = "ALL"

// httpMethods lists the concrete HTTP methods recognized by spec.md §6,
// used when PushMiddlewares("*", ...) or a subtree pattern must attach
// middleware across every method's route tree, including ALL's own tree.
func httpMethods() []string {
	return []string{
		"GET", "POST", "PUT", "DELETE", "PATCH",
		"OPTIONS", "HEAD", "TRACE", "CONNECT", methodAll,
	}
}

// splitRequestTarget separates a raw request target (path possibly
// carrying a query string and/or fragment) into its normalized pathname,
// parsed search params, and fragment, per spec.md §4.1 Normalization.
// urlInput is the original, unmodified input.
func splitRequestTarget(raw string) (urlInput, pathname string, search url.Values, hash string) {
	urlInput = raw
	rest := raw

	if idx := strings.IndexByte(rest, '#'); idx != -1 {
		hash = rest[idx+1:]
		rest = rest[:idx]
	}

	search = url.Values{}
	if idx := strings.IndexByte(rest, '?'); idx != -1 {
		if values, err := url.ParseQuery(rest[idx+1:]); err == nil {
			search = values
		}
		rest = rest[:idx]
	}

	pathname = rest
	return
}
