package pipeline

import "net/http"

// Request describes one outgoing upstream call. Descriptors are never mutated
// after construction; the single refresh-triggered replay works on a copy with
// the retried flag set, so a descriptor reused by callers cannot be aliased
// into a retry loop.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte

	retried bool
}

// NewRequest builds a descriptor for the given method and upstream path.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: http.Header{},
	}
}

// WithHeader returns a copy with the header set.
func (r *Request) WithHeader(key, value string) *Request {
	cp := r.clone()
	cp.Header.Set(key, value)
	return cp
}

// WithBody returns a copy carrying the given body.
func (r *Request) WithBody(body []byte) *Request {
	cp := r.clone()
	cp.Body = body
	return cp
}

// WithRetried returns a copy marked as already replayed. A request carrying
// this mark that fails authentication again is terminal.
func (r *Request) WithRetried() *Request {
	cp := r.clone()
	cp.retried = true
	return cp
}

// Retried reports whether this descriptor has already been replayed once.
func (r *Request) Retried() bool {
	return r.retried
}

func (r *Request) clone() *Request {
	cp := &Request{
		Method:  r.Method,
		Path:    r.Path,
		Header:  r.Header.Clone(),
		Body:    r.Body,
		retried: r.retried,
	}
	if cp.Header == nil {
		cp.Header = http.Header{}
	}
	return cp
}
