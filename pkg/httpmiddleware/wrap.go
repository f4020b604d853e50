// Package httpmiddleware provides the shared middleware plumbing for HTTP
// servers built around the auth decision core: explicit chaining, panic
// recovery, request IDs, and request logging. Middleware composition is plain
// function composition; nothing registers itself globally.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies the given middlewares to h. The first middleware in the list
// is the outermost one, i.e. Wrap(h, a, b) serves a(b(h)).
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
