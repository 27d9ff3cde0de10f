package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/custodia-labs/umlgen/internal/logger"
)

// DefaultShutdownTimeout bounds graceful shutdown once Run's context is done.
const DefaultShutdownTimeout = 15 * time.Second

// Server is the REST API server.
type Server struct {
	ports           *Ports
	app             *fiber.App
	shutdownTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithShutdownTimeout sets how long Run waits for in-flight requests to finish.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer creates a server and registers its routes.
func NewServer(ports *Ports, opts ...ServerOption) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:           ports,
		shutdownTimeout: DefaultShutdownTimeout,
		app: fiber.New(fiber.Config{
			AppName:               "umlgen",
			ErrorHandler:          ErrorHandler,
			DisableStartupMessage: true,
			ReadTimeout:           30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app.Use(recover.New())
	s.app.Use(accessLog)
	s.registerRoutes()

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)
	if s.ports.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.ports.Metrics))
	}

	v1 := s.app.Group("/v1")

	generations := v1.Group("/generations")
	generations.Post("/", s.handleSubmit)
	generations.Get("/", s.handleListJobs)
	generations.Get("/:id", s.handleGetJob)
	generations.Delete("/:id", s.handleCancelJob)

	if s.ports.Runs != nil {
		runs := v1.Group("/runs")
		runs.Get("/", s.handleListRuns)
		runs.Get("/:requestId", s.handleGetRun)
		runs.Get("/:requestId/artifacts", s.handleListArtifacts)
		runs.Get("/:requestId/artifacts/:name", s.handleGetArtifact)
	}

	if s.ports.Index != nil {
		index := v1.Group("/index")
		index.Get("/", s.handleIndexInfo)
		index.Post("/rebuild", s.handleIndexRebuild)
		index.Post("/query", s.handleIndexQuery)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// accessLog logs each request at debug level.
func accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	logger.Debug("%s %s %d %s", c.Method(), c.OriginalURL(), c.Response().StatusCode(), time.Since(start).Round(time.Microsecond))
	return err
}
