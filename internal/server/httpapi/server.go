// Package httpapi exposes the api service as JSON over HTTP. The session
// travels in an HttpOnly cookie, the access token in the Authorization
// header.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
)

type Options struct {
	// TrustForwardedProto lets X-Forwarded-Proto from a fronting proxy mark
	// the request as HTTPS.
	TrustForwardedProto bool
	AllowedOrigins      []string
}

type Server struct {
	address string
	api     *api.Service
	metrics *metrics.Metrics
	logger  logging.Logger
	opts    Options
}

func NewServer(address string, l logging.Logger, svc *api.Service, m *metrics.Metrics, opts Options) *Server {
	return &Server{
		address: address,
		api:     svc,
		metrics: m,
		logger:  l.With("module", "http_server"),
		opts:    opts,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
