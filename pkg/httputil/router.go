package httputil

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Middleware defines a function type that represents a middleware.
// Middleware functions wrap an http.Handler to modify or enhance its
// behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

// Router is the main structure for handling HTTP routing and middleware.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	prefix     string
	middleware []Middleware
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		server: &http.Server{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom
// http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// Use adds one or more middleware to the router. Middleware functions are
// applied in the order they are added.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	if len(additional) > 0 {
		r.middleware = append(r.middleware, additional...)
	}
}

// Group creates a new sub-router with a specified prefix. The sub-router
// inherits the middleware from its parent router.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		middleware: slices.Clone(r.middleware),
		server:     r.server,
		prefix:     r.prefix + prefix,
	}
}

// Prefix returns the path prefix routes resolve under, empty for the
// root router.
func (r *Router) Prefix() string {
	return r.prefix
}

// Handle registers an HTTP handler for a given "METHOD /pattern" string,
// using the method patterns introduced in Go 1.22. A handler registered
// on a route group with a /prefix resolves to `METHOD /prefix/pattern`.
func (r *Router) Handle(methodPattern string, handler http.Handler) error {
	parts := strings.SplitN(methodPattern, " ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid method pattern: %s", methodPattern)
	}
	method, pattern := parts[0], parts[1]

	r.mu.RLock()
	defer r.mu.RUnlock()

	finalHandler := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		finalHandler = r.middleware[i](finalHandler)
	}
	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), finalHandler)
	return nil
}

// HandleFunc registers a handler func, see Handle.
func (r *Router) HandleFunc(methodPattern string, handler http.HandlerFunc) error {
	return r.Handle(methodPattern, handler)
}

// Handler returns the router's root handler for mounting in tests or a
// caller-owned server. Middleware is bound per route at Handle time, so
// the mux is returned as-is.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// ListenAndServe starts the HTTP server on addr.
func (r *Router) ListenAndServe(addr string) error {
	r.server.Addr = addr
	r.server.Handler = r.Handler()
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}
