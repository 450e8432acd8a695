package servex

import (
	"io"
	"net/http"
)

// Response is the value a handler's builder calls (JSON, String, HTML, ...)
// assemble and the Chain Executor commits to the wire. Handlers in this
// rendering never return a Response directly (spec.md's dynamic-language
// contract returns `Response | void`); instead a Response is committed as
// a side effect of calling a Context builder, and Context.statusCodeWritten tracks
// whether one has been written yet, matching Invariant I5 — the first
// builder call wins, later calls are no-ops.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	BodyReader io.Reader
}

// Responder is implemented by HttpException and Redirect: sentinels that
// carry a pre-built Response instead of propagating as an opaque error.
// The Chain Executor's recovery wrapper type-switches on this interface
// (spec.md §4.2, §4.7).
type Responder interface {
	error
	Response() Response
}

// writeResponse commits resp to w. It is the only place status, headers
// and body are written: Context.commit calls it for the Context builder
// methods (JSON, String, ...) as well as for panic-recovered or sentinel
// Responses.
func writeResponse(w http.ResponseWriter, resp Response) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.BodyReader != nil {
		io.Copy(w, resp.BodyReader)
		return
	}
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}
