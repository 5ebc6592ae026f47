package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aethra/keybot/engine/infra/monitoring"
	"github.com/aethra/keybot/pkg/logger"
)

const (
	httpReadTimeout       = 15 * time.Second
	httpWriteTimeout      = 15 * time.Second
	httpIdleTimeout       = 60 * time.Second
	serverShutdownTimeout = 5 * time.Second
	readinessTimeout      = 2 * time.Second
)

// ReadinessCheck reports whether a component is ready to serve.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Host       string
	Port       int
	Version    string
	Monitoring *monitoring.Service
	Checks     map[string]ReadinessCheck
}

// Server is the uptime, health and metrics HTTP endpoint.
type Server struct {
	opts   Options
	router *gin.Engine
}

func New(ctx context.Context, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger.FromContext(ctx)))
	if opts.Monitoring != nil {
		router.Use(opts.Monitoring.GinMiddleware())
	}
	s := &Server{opts: opts, router: router}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Bot is alive")
	})
	s.router.GET("/health", CreateHealthHandler(s.opts.Version, s.opts.Checks))
	if s.opts.Monitoring != nil {
		s.router.GET(s.opts.Monitoring.Path(), gin.WrapH(s.opts.Monitoring.ExporterHandler()))
	}
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Address() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := logger.FromContext(ctx)
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", ln.Addr()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
