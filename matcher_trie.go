package servex

import (
	"net/url"
	"strconv"
	"strings"
)

// trieNode is one segment of a registered path. Unlike goxpress's
// routerNode (router.go), a trieNode carries its own middleware set and
// distinguishes static/dynamic/wildcard children explicitly instead of a
// single isWild bool, so PushMiddlewares and the I3 wildcard-misplacement
// check have somewhere to attach.
type trieNode struct {
	kind      segmentKind
	literal   string // for segStatic
	paramName string // for segDynamic/segWildcard

	children map[string]*trieNode // keyed by literal, segStatic only
	dynamic  []*trieNode          // segDynamic children (normally at most one)
	wildcard *trieNode            // segWildcard child, if any

	methodData  map[string][]Handler
	middlewares []Handler
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// TrieMatcher is the simplest of the three backends: one node per literal
// path segment, arranged per HTTP method. It offers strict, deterministic
// static → dynamic → wildcard precedence and is the best fit for small
// route tables, per spec.md §4.1.a.
//
// Grounded on goxpress's Router/routerTree/routerNode (router.go), which
// this generalizes with explicit middleware attachment, wildcard
// misplacement detection, and a recursive, backtracking match that records
// its descent stack for middleware collection.
type TrieMatcher struct {
	roots map[string]*trieNode // method -> root node
}

// NewTrieMatcher creates an empty TrieMatcher.
func NewTrieMatcher() *TrieMatcher {
	return &TrieMatcher{roots: make(map[string]*trieNode)}
}

func (m *TrieMatcher) rootFor(method string) *trieNode {
	root, ok := m.roots[method]
	if !ok {
		root = newTrieNode()
		m.roots[method] = root
	}
	return root
}

// Add implements Matcher.
func (m *TrieMatcher) Add(method, path string, data []Handler) error {
	paths, err := expandOptionalPatterns(path)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.addOne(method, p, data); err != nil {
			return err
		}
	}
	return nil
}

func (m *TrieMatcher) addOne(method, path string, data []Handler) error {
	segs, err := parsePattern(path)
	if err != nil {
		return err
	}
	node := m.rootFor(method)
	for _, s := range segs {
		if node.wildcard != nil {
			return ErrWildcardMisplacement
		}
		switch s.kind {
		case segStatic:
			child, ok := node.children[s.value]
			if !ok {
				child = newTrieNode()
				child.kind = segStatic
				child.literal = s.value
				node.children[s.value] = child
			}
			node = child
		case segDynamic:
			var child *trieNode
			for _, d := range node.dynamic {
				if d.paramName == s.value {
					child = d
					break
				}
			}
			if child == nil {
				child = newTrieNode()
				child.kind = segDynamic
				child.paramName = s.value
				node.dynamic = append(node.dynamic, child)
			}
			node = child
		case segWildcard:
			if node.wildcard == nil {
				node.wildcard = newTrieNode()
				node.wildcard.kind = segWildcard
				node.wildcard.paramName = s.value
			}
			node = node.wildcard
		}
	}
	if node.methodData == nil {
		node.methodData = make(map[string][]Handler)
	}
	node.methodData[method] = data
	return nil
}

// Match implements Matcher. A request is first matched against routes
// registered for its exact method, then — only if that fails — against
// routes registered with the ALL pseudo-method (spec.md §6: "ALL/all
// matching any").
func (m *TrieMatcher) Match(method, rawPath string) (MatchedRoute, bool) {
	urlInput, pathname, search, hash := splitRequestTarget(rawPath)
	segs := splitPath(pathname)

	for _, tryMethod := range []string{method, methodAll} {
		root, ok := m.roots[tryMethod]
		if !ok {
			continue
		}
		params := make(map[string]string)
		var visited []*trieNode
		node, ok := trieDescend(root, segs, 0, params, &visited)
		if !ok {
			continue
		}
		data, ok := node.methodData[tryMethod]
		if !ok {
			continue
		}
		mw := collectTrieMiddlewares(visited)
		return MatchedRoute{
			Method:       method,
			URLInput:     urlInput,
			MatchedPath:  pathname,
			Params:       params,
			SearchParams: search,
			Hash:         hash,
			Data:         data,
			Middlewares:  mw,
		}, true
	}
	return MatchedRoute{}, false
}

// trieDescend walks static children first, then dynamic, then wildcard,
// recording each visited node on visited for later middleware collection.
// This is the explicit-stack rendering of spec.md §9's preferred
// "walk-down-and-reverse" strategy — no parent back-pointers. It returns a
// node whose *path* matches; the caller is responsible for checking that
// node carries data for the method being matched.
func trieDescend(node *trieNode, segs []string, i int, params map[string]string, visited *[]*trieNode) (*trieNode, bool) {
	*visited = append(*visited, node)

	if i == len(segs) {
		return node, true
	}

	part := segs[i]

	if child, ok := node.children[part]; ok {
		mark := len(*visited)
		if n, ok := trieDescend(child, segs, i+1, params, visited); ok {
			return n, true
		}
		*visited = (*visited)[:mark]
	}

	for _, d := range node.dynamic {
		decoded, err := url.PathUnescape(part)
		if err != nil {
			decoded = part
		}
		params[d.paramName] = decoded
		mark := len(*visited)
		if n, ok := trieDescend(d, segs, i+1, params, visited); ok {
			return n, true
		}
		delete(params, d.paramName)
		*visited = (*visited)[:mark]
	}

	if node.wildcard != nil {
		name := node.wildcard.paramName
		if name == "" {
			name = strconv.Itoa(len(params))
		}
		params[name] = strings.Join(segs[i:], "/")
		*visited = append(*visited, node.wildcard)
		return node.wildcard, true
	}

	return nil, false
}

func collectTrieMiddlewares(visited []*trieNode) []Handler {
	var all []Handler
	for _, n := range visited {
		if len(n.middlewares) > 0 {
			all = append(all, n.middlewares...)
		}
	}
	return dedupeHandlers(all)
}

// Routes implements Matcher.
func (m *TrieMatcher) Routes() []RouteDescriptor {
	var out []RouteDescriptor
	for method, root := range m.roots {
		walkTrieRoutes(method, "", root, &out)
	}
	return out
}

func walkTrieRoutes(method, prefix string, n *trieNode, out *[]RouteDescriptor) {
	if data, ok := n.methodData[method]; ok {
		*out = append(*out, RouteDescriptor{Method: method, Path: prefix, Data: data})
	}
	for lit, child := range n.children {
		walkTrieRoutes(method, prefix+"/"+lit, child, out)
	}
	for _, d := range n.dynamic {
		walkTrieRoutes(method, prefix+"/:"+d.paramName, d, out)
	}
	if n.wildcard != nil {
		name := n.wildcard.paramName
		walkTrieRoutes(method, prefix+"/*"+name, n.wildcard, out)
	}
}

// PushMiddlewares implements Matcher.
func (m *TrieMatcher) PushMiddlewares(pattern string, mw []Handler) {
	if pattern == "*" {
		for _, method := range httpMethods() {
			m.rootFor(method)
		}
		for _, root := range m.roots {
			attachTrieMiddlewareEverywhere(root, mw)
		}
		return
	}
	recursive := strings.HasSuffix(pattern, "*")
	prefix := strings.TrimSuffix(pattern, "*")
	prefix = strings.TrimSuffix(prefix, "/")
	segs := splitPath(prefix)

	for _, method := range httpMethods() {
		root := m.rootFor(method)
		node := trieEnsurePath(root, segs)
		if recursive {
			attachTrieMiddlewareEverywhere(node, mw)
		} else {
			node.middlewares = append(node.middlewares, mw...)
		}
	}
}

func attachTrieMiddlewareEverywhere(n *trieNode, mw []Handler) {
	n.middlewares = append(n.middlewares, mw...)
	for _, child := range n.children {
		attachTrieMiddlewareEverywhere(child, mw)
	}
	for _, d := range n.dynamic {
		attachTrieMiddlewareEverywhere(d, mw)
	}
	if n.wildcard != nil {
		attachTrieMiddlewareEverywhere(n.wildcard, mw)
	}
}

func trieEnsurePath(root *trieNode, segs []string) *trieNode {
	node := root
	for _, part := range segs {
		if strings.HasPrefix(part, ":") {
			name := strings.TrimPrefix(part, ":")
			var child *trieNode
			for _, d := range node.dynamic {
				if d.paramName == name {
					child = d
					break
				}
			}
			if child == nil {
				child = newTrieNode()
				child.kind = segDynamic
				child.paramName = name
				node.dynamic = append(node.dynamic, child)
			}
			node = child
			continue
		}
		child, ok := node.children[part]
		if !ok {
			child = newTrieNode()
			child.kind = segStatic
			child.literal = part
			node.children[part] = child
		}
		node = child
	}
	return node
}

// Seal implements Matcher; the trie backend never seals.
func (m *TrieMatcher) Seal() error { return nil }
