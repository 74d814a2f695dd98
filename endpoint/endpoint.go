// Package endpoint provides typed HTTP handler plumbing for the Kimlik
// consent and widget pages.
//
// A handler is written as an EndpointFunc: it receives a params struct
// decoded from the request (path, query, form or JSON body, selected by
// struct tags), runs the page logic, and returns a Renderer that writes the
// response. Processors wrap endpoints middleware-style; deferred hooks run
// just before headers are written so processors can persist cookies.
package endpoint

import (
	"context"
	"errors"
	"net/http"
)

// Error is a client-visible error carrying an HTTP status.
//
// Handlers return it to control the status and message of error responses;
// any other error renders as a 500.
type Error struct {
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "endpoint: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Errorf wraps err as an Error with the given status and message.
// If err is already an *Error it is returned unchanged.
func Errorf(status int, message string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	return &Error{Status: status, Message: message, Cause: err}
}

// Renderer writes a complete response: status, headers, body.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor is middleware for endpoints. A processor must either call next
// or return an error; it must not write to the response itself.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc is a typed page handler. P is a struct (or pointer to struct)
// whose fields are populated from the request via `path:`, `query:`, `form:`,
// `header:` and `body:` tags before the function runs.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

type hooksKey struct{}

// Defer registers fn to run immediately before response headers are written.
// Processors use it to persist state (e.g. Set-Cookie) decided during the
// endpoint. Outside an endpoint handler this is a no-op.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	if hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter)); ok && hooks != nil {
		*hooks = append(*hooks, fn)
	}
}

// commit runs deferred hooks in LIFO order, at most once.
func commit(ctx context.Context, w http.ResponseWriter) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if !ok || hooks == nil {
		return
	}
	for i := len(*hooks) - 1; i >= 0; i-- {
		(*hooks)[i](w)
	}
	*hooks = nil
}

// HandleFunc adapts an EndpointFunc and its processors to an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value(hooksKey{}) == nil {
			var hooks []func(http.ResponseWriter)
			r = r.WithContext(context.WithValue(r.Context(), hooksKey{}, &hooks))
		}

		var run func(i int, w http.ResponseWriter, r *http.Request) error
		run = func(i int, w http.ResponseWriter, r *http.Request) error {
			if i < len(processors) {
				p := processors[i]
				if p == nil {
					return errors.New("endpoint: nil processor")
				}
				return p.Process(w, r, func(w http.ResponseWriter, r *http.Request) error {
					return run(i+1, w, r)
				})
			}

			var params P
			if err := Unmarshal(r, &params); err != nil {
				return err
			}
			renderer, err := fn(w, r, params)
			if err != nil {
				return err
			}
			if renderer == nil {
				return errors.New("endpoint: nil renderer")
			}
			commit(r.Context(), w)
			return renderer.Render(w, r)
		}

		if err := run(0, w, r); err != nil {
			status := http.StatusInternalServerError
			message := err.Error()
			var ee *Error
			if errors.As(err, &ee) && ee != nil {
				if ee.Status >= 100 {
					status = ee.Status
				}
				message = ee.Message
				if message == "" {
					message = http.StatusText(status)
				}
			}
			commit(r.Context(), w)
			http.Error(w, message, status)
		}
	}
}
