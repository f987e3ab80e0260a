package engine

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Handler is the signature implemented by all http handlers in this app.
// Handlers return a Response instead of writing to the connection directly
// so that middleware can wrap or replace the result.
type Handler func(*http.Request, httprouter.Params) Response

// Authenticator can be used to pass an authenticator implementation to other handlers.
type Authenticator interface {
	WithAuth(Handler) Handler
	WithTender(Handler) Handler
}

type noopAuthenticator struct{}

func (noopAuthenticator) WithAuth(fn Handler) Handler   { return fn }
func (noopAuthenticator) WithTender(fn Handler) Handler { return fn }

type Router struct {
	router *httprouter.Router

	Authenticator
}

func NewRouter() *Router {
	return &Router{router: httprouter.New(), Authenticator: noopAuthenticator{}}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

func (r *Router) Handle(method, path string, fn Handler) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		start := time.Now()

		ww := &responseWrapper{ResponseWriter: w, status: 200}
		resp := fn(req, ps)
		if resp != nil {
			resp.Write(ww)
		}
		slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
