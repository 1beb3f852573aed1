// Package server hosts the dev gateway: a local HTTP server exposing the
// gateway strategy's API over a filesystem blob store and an in-memory
// metadata store. It exists so gateway-strategy clients have something real
// to talk to in development and tests.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/internal/server/handlers"
	"github.com/dataviz-jp/cartosync/internal/server/middleware"
	"github.com/dataviz-jp/cartosync/pkg/blobstore"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/direct"
)

// Options configures a Server beyond its listen address.
type Options struct {
	Blobs  blobstore.Store
	Meta   direct.MetadataStore
	Logger *zap.Logger

	// RateLimit is requests per second per client IP; Burst sizes the
	// bucket. Zero disables limiting.
	RateLimit float64
	Burst     int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the dev gateway HTTP server.
type Server struct {
	host    string
	port    int
	opts    Options
	handler http.Handler
	httpSrv *http.Server
}

// New assembles the router and middleware chain.
func New(host string, port int, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RateLimit(opts.RateLimit, opts.Burst))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health", handlers.Health)
	r.Get("/version", handlers.VersionHandler)

	projects := &handlers.Projects{
		Blobs:  opts.Blobs,
		Meta:   opts.Meta,
		Logger: logger,
	}
	r.Route("/api/projects", func(api chi.Router) {
		api.Use(middleware.Auth)
		projects.Routes(api)
	})

	return &Server{
		host:    host,
		port:    port,
		opts:    opts,
		handler: r,
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start runs the server until ListenAndServe returns.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
