// Package http exposes the reconciliation engine over a small JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
)

// RequestIDHeader carries the request correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthFunc reports whether the service can take traffic, with optional details
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ServerOption configures optional server behavior
type ServerOption func(*Server)

// WithHealthFunc makes /health report component health instead of a static ok
func WithHealthFunc(fn HealthFunc) ServerOption {
	return func(s *Server) {
		s.handlers.health = fn
	}
}

// Server serves the run API
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server over the workflow engine
func NewServer(config ServerConfig, engine workflow.WorkflowEngine, redactor *Redactor, logger Logger, opts ...ServerOption) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(engine, redactor, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(gin.Recovery(), requestID(), s.accessLog())
	s.setupRoutes()

	return s
}

// requestID reuses the caller's X-Request-ID or assigns a fresh one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"request_id", c.GetString(RequestIDHeader),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		}
		if threadID := c.GetString(threadIDKey); threadID != "" {
			kv = append(kv, "thread_id", threadID)
		}
		s.logger.Info("HTTP request", kv...)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	runs := api.Group("/runs")
	{
		runs.POST("", s.handlers.StartRun)
		runs.POST("/resume", s.handlers.ResumeRun)
		runs.GET("/state", s.handlers.GetState)
		runs.GET("/:thread_id/history", s.handlers.History)
		runs.POST("/:thread_id/recover", s.handlers.Recover)
		runs.DELETE("/:thread_id", s.handlers.Purge)
	}
	api.GET("/approvals", s.handlers.PendingApprovals)
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop drains in-flight requests for up to ten seconds
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
