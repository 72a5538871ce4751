// Package server wraps the HTTP listener with sane timeouts and a
// graceful shutdown path.
package server

import (
	"context"
	"net/http"
	"time"

	"concierge-automation/internal/common/logging"
)

type Server struct {
	srv    *http.Server
	logger logging.Logger
}

func New(handler http.Handler, port string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine. Listener errors other
// than a clean shutdown are fatal.
func (s *Server) Start() {
	s.logger.Info("http server listening", logging.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", err)
			panic(err)
		}
	}()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
