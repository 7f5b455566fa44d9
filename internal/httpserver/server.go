package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bortube/gateway/internal/config"
)

// Server wraps the http.Server with the gateway's timeouts.
type Server struct {
	inner           *http.Server
	shutdownTimeout timeoutOrDefault
}

// New constructs a server listening on the provided port.
func New(port int, handler http.Handler, cfg config.HTTPConfig) *Server {
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: timeoutOrDefault(cfg.ReadHeaderTimeout).or(DefaultReadHeaderTimeout),
			WriteTimeout:      timeoutOrDefault(cfg.WriteTimeout).or(DefaultWriteTimeout),
		},
		shutdownTimeout: timeoutOrDefault(cfg.ShutdownTimeout),
	}
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server, waiting at most the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout.or(DefaultShutdownTimeout))
	defer cancel()
	return s.inner.Shutdown(ctx)
}
