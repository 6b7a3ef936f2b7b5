package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/api"
	"github.com/pageza/cookbook/backend/internal/middleware"
)

const (
	shutdownTimeout    = 5 * time.Second
	maxMultipartMemory = 32 << 20
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	http       *http.Server
	log        *zap.Logger
	onShutdown []func()
}

// New builds the gin engine with the middleware chain and every API route.
// onShutdown hooks run after the listener has drained.
func New(deps api.Deps, onShutdown ...func()) *Server {
	cfg := deps.Config

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(
		middleware.Recovery(deps.Log),
		middleware.RequestLogger(deps.Log),
		middleware.CORS(cfg.CORSOrigins),
	)
	router.NoRoute(middleware.NotFound())

	// uploads are served by the API only when they live on local disk
	if cfg.StorageBackend == config.StorageLocal && strings.HasPrefix(cfg.PublicBaseURL, "/") {
		router.Static(cfg.PublicBaseURL, cfg.UploadDir)
	}

	api.RegisterRoutes(router, deps)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:        deps.Log,
		onShutdown: onShutdown,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully stops the HTTP server and runs the shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	for _, fn := range s.onShutdown {
		fn()
	}
	if err != nil {
		return err
	}
	s.log.Info("Server stopped")
	return nil
}
