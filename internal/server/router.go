package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// BasicRouter is a small HTTP router implementing the [Router] interface,
// built on [http.ServeMux]. Method filtering answers with a JSON error and
// an Allow header so API consumers always get a parseable body.
type BasicRouter struct {
	mux         *http.ServeMux
	methods     map[string]map[string]http.Handler // path -> method -> handler
	middlewares []Middleware
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:     http.NewServeMux(),
		methods: make(map[string]map[string]http.Handler),
	}
}

// Use adds [Middleware] to the stack. Middleware added first runs outermost.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for one HTTP method on a path. Registering the
// same path again with a different method extends the allowed set rather
// than replacing it.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	method = strings.ToUpper(method)
	byMethod, seen := r.methods[path]
	if !seen {
		byMethod = make(map[string]http.Handler)
		r.methods[path] = byMethod
		r.mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h, ok := byMethod[strings.ToUpper(req.Method)]
			if !ok {
				methodNotAllowed(w, byMethod)
				return
			}
			h.ServeHTTP(w, req)
		}))
	}
	byMethod[method] = r.apply(handler)
}

// Handler registers every route a [Handler] serves. The handler does its
// own method filtering per route.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.apply(handler)
	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodNotAllowed(w http.ResponseWriter, byMethod map[string]http.Handler) {
	allowed := make([]string, 0, len(byMethod))
	for m := range byMethod {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	fmt.Fprint(w, `{"error":"method not allowed"}`)
}

// apply wraps a handler in the middleware stack, innermost last added.
func (r *BasicRouter) apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}
