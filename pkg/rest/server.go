package rest

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/cache"
	"github.com/ocervell/flash/pkg/httputil"
	"github.com/ocervell/flash/pkg/httputil/middleware"
	"github.com/ocervell/flash/pkg/schema"
	"github.com/ocervell/flash/pkg/store"
)

// Server mounts resources on an HTTP router backed by one store and one
// shared response cache.
type Server struct {
	router   *httputil.Router
	store    store.Store
	cache    *cache.Cache
	registry *schema.Registry
	logger   *zap.Logger
}

type ServerOption func(*Server)

// WithLogger replaces the default nop logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithPrefix mounts every resource under a path prefix, e.g. /api/v1.
func WithPrefix(prefix string) ServerOption {
	return func(s *Server) { s.router = s.router.Group(prefix) }
}

// NewServer builds a resource server over st. Standard middleware
// (request id, structured logging, panic recovery) applies to every
// route registered afterwards.
func NewServer(st store.Store, opts ...ServerOption) *Server {
	s := &Server{
		router:   httputil.NewRouter(),
		store:    st,
		cache:    cache.New(),
		registry: schema.NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(
		middleware.RequestID,
		middleware.Recoverer(s.logger),
		middleware.Logger(&middleware.LoggerOptions{Logger: s.logger}),
	)
	return s
}

// Register validates the resource's model, adds it to the registry and
// wires its collection and single-record routes.
func (s *Server) Register(res *Resource) error {
	if err := res.Model.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", res.Model.Name, err)
	}
	if err := s.registry.Register(res.Model); err != nil {
		return err
	}

	col, single := res.CollectionPath(), res.SinglePath()
	h := &handler{
		res:      res,
		store:    s.store,
		cache:    s.cache,
		logger:   s.logger,
		basePath: s.router.Prefix() + col,
	}

	routes := map[string]http.HandlerFunc{
		"GET " + col:       h.getMany,
		"HEAD " + col:      h.head,
		"POST " + col:      h.create,
		"PUT " + col:       h.update,
		"DELETE " + col:    h.deleteMany,
		"GET " + single:    h.getOne,
		"PUT " + single:    h.update,
		"DELETE " + single: h.deleteOne,
	}
	for pattern, fn := range routes {
		if err := s.router.HandleFunc(pattern, h.wrap(fn)); err != nil {
			return fmt.Errorf("register %s: %w", res.Model.Name, err)
		}
	}
	s.logger.Info("registered resource",
		zap.String("model", res.Model.Name),
		zap.String("path", col),
		zap.Bool("cached", res.Cached))
	return nil
}

// Registry exposes the registered models, e.g. for a client built in
// the same process.
func (s *Server) Registry() *schema.Registry {
	return s.registry
}

// Handler returns the root handler for tests or a caller-owned server.
func (s *Server) Handler() http.Handler {
	return s.router.Handler()
}

// ListenAndServe starts serving on addr and blocks.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.router.ListenAndServe(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}
