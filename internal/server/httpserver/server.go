// Package httpserver provides the HTTP/HTTPS server for ScriptGate.
//
// It uses the Go standard library net/http for the server itself;
// routing and middleware live in router.go and middleware.go, request
// handlers in the handler subpackage.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the standard HTTP server with the configured
// timeouts.
type Server struct {
	httpServer *http.Server
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
