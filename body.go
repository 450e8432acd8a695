package servex

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeForm  = "application/x-www-form-urlencoded"
	contentTypeMulti = "multipart/form-data"
	contentTypeText  = "text/plain; charset=utf-8"
	contentTypeHTML  = "text/html; charset=utf-8"
)

// jsonMarshal is the single indirection point for JSON encoding used by
// Context.JSON and HttpException.Response, kept separate so both read the
// same encoding rules.
func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// parsedBody holds the memoized result of reading and decoding the request
// body exactly once (spec.md §4.8: "read on request and cached in the
// context").
type parsedBody struct {
	read          bool
	raw           []byte
	json          interface{}
	jsonErr       error
	form          url.Values
	formErr       error
	multipartForm *multipart.Form
	multipartErr  error
}

// readRaw reads and buffers the request body exactly once, regardless
// of which typed accessor (JSON/FormData/URLEncoded) is called first.
func (pb *parsedBody) readRaw(req *http.Request) []byte {
	if pb.read {
		return pb.raw
	}
	pb.read = true
	if req.Body == nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		pb.raw = nil
		return nil
	}
	pb.raw = data
	return data
}

// contentTypeKind dispatches on the Content-Type header per spec.md §4.8.
func contentTypeKind(req *http.Request) string {
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	kind, _, err := mime.ParseMediaType(ct)
	if err != nil {
		// fall back to a prefix check for malformed but recognizable headers
		kind = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	}
	return kind
}

// Body is the Body Parser's documented entry point (spec.md §4.8,
// SPEC_FULL §6.8): it dispatches on Content-Type and returns the decoded
// value, or nil for a Content-Type this parser does not recognize (or none
// at all). The typed accessors below (BindJSON/JSONBody/URLEncoded/
// FormData) remain available for callers that already know the shape they
// expect; Body is for the generic case and shares the memoized state of
// JSONBody/URLEncoded/FormData, so calling it before or after the matching
// one of those parses the body only once. BindJSON decodes again on each
// call.
func (c *Context) Body() (interface{}, error) {
	switch contentTypeKind(c.Request) {
	case contentTypeJSON:
		return c.JSONBody()
	case contentTypeForm:
		values, err := c.URLEncoded()
		if err != nil {
			return nil, err
		}
		first := make(map[string]string, len(values))
		for k, v := range values {
			if len(v) > 0 {
				first[k] = v[0]
			}
		}
		return first, nil
	case contentTypeMulti:
		return c.FormData()
	default:
		return nil, nil
	}
}

// BindJSON decodes the request body as JSON into obj. The raw body is read
// once and buffered, so repeated calls (or a prior Context.JSONBody() call)
// reuse the same bytes; each call decodes them anew. It returns a *BodyParseError (not a bare error)
// on malformed input, matching spec.md §4.8's "on parse failure return a
// 400 Invalid JSON response sentinel" — callers that want the sentinel
// response should panic(err) to let the Chain Executor commit it.
func (c *Context) BindJSON(obj interface{}) error {
	raw := c.body.readRaw(c.Request)
	if len(raw) == 0 {
		return &BodyParseError{Reason: "empty body"}
	}
	if err := json.Unmarshal(raw, obj); err != nil {
		return &BodyParseError{Reason: err.Error()}
	}
	return nil
}

// JSONBody lazily parses the body as a generic JSON value (map, slice, or
// scalar) and memoizes both the value and any error across calls.
func (c *Context) JSONBody() (interface{}, error) {
	if c.body.json != nil || c.body.jsonErr != nil {
		return c.body.json, c.body.jsonErr
	}
	raw := c.body.readRaw(c.Request)
	if len(raw) == 0 {
		c.body.jsonErr = &BodyParseError{Reason: "empty body"}
		return nil, c.body.jsonErr
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.body.jsonErr = &BodyParseError{Reason: err.Error()}
		return nil, c.body.jsonErr
	}
	c.body.json = v
	return v, nil
}

// URLEncoded lazily parses an application/x-www-form-urlencoded body,
// memoizing the result (spec.md §4.3 "formData()/urlEncoded() — lazy;
// memoize on first call").
func (c *Context) URLEncoded() (url.Values, error) {
	if c.body.form != nil || c.body.formErr != nil {
		return c.body.form, c.body.formErr
	}
	raw := c.body.readRaw(c.Request)
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		c.body.formErr = &BodyParseError{Reason: err.Error()}
		return nil, c.body.formErr
	}
	c.body.form = values
	return values, nil
}

// FormData lazily parses a multipart/form-data body, memoizing the result.
// A non-multipart request yields a *BodyParseError; it does not fall back
// to URLEncoded.
func (c *Context) FormData() (*multipart.Form, error) {
	if c.body.multipartForm != nil || c.body.multipartErr != nil {
		return c.body.multipartForm, c.body.multipartErr
	}
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		c.body.multipartErr = &BodyParseError{Reason: err.Error()}
		return nil, c.body.multipartErr
	}
	c.body.multipartForm = c.Request.MultipartForm
	return c.body.multipartForm, nil
}
