// Package api serves the platewatch status, search and blacklist API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/platewatch/internal/api/middleware"
	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/diskmanager"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/pipeline"
)

// Pipeline is the part of the pipeline manager exposed over HTTP.
type Pipeline interface {
	Stats() pipeline.Stats
	Recent() []pipeline.RecentPlate
	RequestCleanup() bool
	RequestReport(day time.Time) bool
}

// Invalidator drops cached data after a write.
type Invalidator interface {
	Invalidate()
}

// Server is the HTTP API server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	store     datastore.Interface
	pipeline  Pipeline
	blacklist Invalidator
	images    *diskmanager.ImageStore
	metrics   http.Handler

	startTime time.Time
	mu        sync.Mutex
	running   bool
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDataStore sets the datastore. Required.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) { s.store = ds }
}

// WithPipeline exposes pipeline statistics and maintenance.
func WithPipeline(p Pipeline) ServerOption {
	return func(s *Server) { s.pipeline = p }
}

// WithBlacklistCache sets the cache invalidated by blacklist writes.
func WithBlacklistCache(c Invalidator) ServerOption {
	return func(s *Server) { s.blacklist = c }
}

// WithImageStore serves stored detection images.
func WithImageStore(images *diskmanager.ImageStore) ServerOption {
	return func(s *Server) { s.images = images }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// requestValidator adapts go-playground/validator to echo.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// New creates the server and registers its routes.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		log:       GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		return nil, fmt.Errorf("api server requires a datastore")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = logger.NewEchoAdapter(s.log.Module("echo"))
	s.echo.Validator = &requestValidator{v: validator.New()}
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized", logger.String("address", config.Listen))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.SkipPaths("/health", "/metrics")))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
	s.echo.Use(echomw.Gzip())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")

	v1.GET("/plates", s.searchPlates)
	v1.GET("/plates/:plate", s.getPlate)
	v1.GET("/plates/:plate/variants", s.getVariants)
	v1.GET("/plates/:plate/detections", s.getDetections)
	v1.GET("/plates/:plate/groups", s.getGroupedDetections)
	v1.GET("/plates/:plate/image", s.getPlateImage)

	v1.GET("/blacklist", s.listBlacklist)
	v1.POST("/blacklist", s.addBlacklist)
	v1.DELETE("/blacklist/:plate", s.removeBlacklist)

	v1.GET("/alerts", s.recentAlerts)
	v1.GET("/stats", s.dailyStats)
	v1.GET("/recent", s.recentPlates)
	v1.GET("/pipeline", s.pipelineStats)
	v1.POST("/maintenance/cleanup", s.requestCleanup)
	v1.POST("/reports/daily", s.requestReport)
	v1.GET("/system", s.systemInfo)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-errCh
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	status, code := "healthy", http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	dbStatus := "ok"
	if err := s.store.Ping(ctx); err != nil {
		status, code, dbStatus = "degraded", http.StatusServiceUnavailable, err.Error()
	}

	body := map[string]any{
		"status":         status,
		"database":       dbStatus,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.pipeline != nil {
		body["pipeline_running"] = s.pipeline.Stats().Running
	}
	return c.JSON(code, body)
}
