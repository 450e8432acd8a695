package servex

import (
	"fmt"
	"net/http"
)

// HttpException is a user-raised sentinel that carries its own pre-built
// Response. The Chain Executor recovers it locally (via panic/recover) and
// commits Response() verbatim, per spec.md §4.7/§7 — it is never logged as
// an unhandled error.
type HttpException struct {
	Status  int
	Message string
	Data    interface{}
	Headers http.Header
}

// NewHttpException constructs an HttpException for status with message as
// its body text. Panic with it (or a *Redirect) from inside a handler to
// short-circuit the chain with a specific response:
//
//	panic(servex.NewHttpException(http.StatusForbidden, "not your resource"))
func NewHttpException(status int, message string) *HttpException {
	return &HttpException{Status: status, Message: message}
}

func (e *HttpException) Error() string {
	return fmt.Sprintf("servex: http exception %d: %s", e.Status, e.Message)
}

// Response builds the Response this exception carries. Data, when set,
// is JSON-encoded as the body instead of Message.
func (e *HttpException) Response() Response {
	header := http.Header{}
	for k, v := range e.Headers {
		header[k] = v
	}
	body := []byte(e.Message)
	if e.Data != nil {
		if encoded, err := jsonMarshal(e.Data); err == nil {
			body = encoded
			if header.Get("Content-Type") == "" {
				header.Set("Content-Type", contentTypeJSON)
			}
		}
	}
	return Response{
		Status:     e.Status,
		StatusText: http.StatusText(e.Status),
		Header:     header,
		Body:       body,
	}
}

// Redirect is a 3xx sentinel carrying the target Location. It is recovered
// by the Chain Executor the same way HttpException is (spec.md §4.7).
type Redirect struct {
	URL    string
	Status int
}

// NewRedirect builds a Redirect to url with the given status, defaulting
// to 302 Found when status is 0.
func NewRedirect(url string, status int) *Redirect {
	if status == 0 {
		status = http.StatusFound
	}
	return &Redirect{URL: url, Status: status}
}

func (r *Redirect) Error() string {
	return fmt.Sprintf("servex: redirect %d to %s", r.Status, r.URL)
}

func (r *Redirect) Response() Response {
	header := http.Header{}
	header.Set("Location", r.URL)
	return Response{
		Status:     r.Status,
		StatusText: http.StatusText(r.Status),
		Header:     header,
		Body:       []byte{},
	}
}

// BodyParseError is returned as a 400 Response rather than thrown, per
// spec.md §4.8 — the Body Parser never panics on malformed input.
type BodyParseError struct {
	Reason string
}

func (e *BodyParseError) Error() string {
	return "servex: invalid request body: " + e.Reason
}

func (e *BodyParseError) Response() Response {
	header := http.Header{}
	header.Set("Content-Type", contentTypeText)
	return Response{
		Status:     http.StatusBadRequest,
		StatusText: http.StatusText(http.StatusBadRequest),
		Header:     header,
		Body:       []byte("Invalid JSON"),
	}
}

// notFoundResponse and internalErrorResponse are the two default bodies
// spec.md §6 requires: an unmatched route and an unhandled error.
func notFoundResponse() Response {
	return Response{
		Status:     http.StatusNotFound,
		StatusText: http.StatusText(http.StatusNotFound),
		Header:     http.Header{"Content-Type": []string{contentTypeText}},
		Body:       []byte("Not Found"),
	}
}

func internalErrorResponse() Response {
	return Response{
		Status:     http.StatusInternalServerError,
		StatusText: http.StatusText(http.StatusInternalServerError),
		Header:     http.Header{"Content-Type": []string{contentTypeText}},
		Body:       []byte("Internal Server Error"),
	}
}

// nextCalledTwicePanic is the internal sentinel panicked by Context.Next
// when Invariant I4 is violated. It implements Responder so the Chain
// Executor's generic recovery path commits a 500 without special-casing
// it beyond logging a clearer message (spec.md §7: "NextCalledTwice...
// surfaces as 500 and is logged").
type nextCalledTwicePanic struct{}

func (nextCalledTwicePanic) Error() string { return ErrNextCalledTwice.Error() }

func (nextCalledTwicePanic) Response() Response { return internalErrorResponse() }
