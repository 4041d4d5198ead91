// Package http serves the governance pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/config"
	"github.com/fyrsmithlabs/apigov/internal/logging"
	"github.com/fyrsmithlabs/apigov/internal/revision"
	"github.com/fyrsmithlabs/apigov/internal/runner"
)

// maxBodySize bounds request bodies; two versions of one source file fit easily.
const maxBodySize = "4M"

// Runner executes validation runs. *runner.Runner satisfies it.
type Runner interface {
	RunCode(ctx context.Context, source, oldCode, newCode string) (*runner.Result, error)
	RunGit(ctx context.Context, req runner.GitRequest) (*runner.Result, error)
}

// Server provides HTTP endpoints for apigov.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *logging.Logger
	config config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(r Runner, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if r == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9191
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		runner: r,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/validate", s.handleValidate)
	v1.POST("/validate/git", s.handleValidateGit)
}

// ValidateRequest is the request body for POST /api/v1/validate.
type ValidateRequest struct {
	OldCode string `json:"old_code"`
	NewCode string `json:"new_code"`
	// Source names the file for logs and artifacts. Defaults to "request".
	Source string `json:"source,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleValidate runs the pipeline on one pair of versions and returns the final
// state. Stage failures are reported in the state's error field with status 200.
func (s *Server) handleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid validate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OldCode == "" && req.NewCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "old_code or new_code is required")
	}
	if req.Source == "" {
		req.Source = "request"
	}

	res, err := s.runner.RunCode(c.Request().Context(), req.Source, req.OldCode, req.NewCode)
	if err != nil {
		return s.runError(c, err)
	}
	return c.JSON(http.StatusOK, res.Files[0].State)
}

// handleValidateGit runs the pipeline over the changes between two revisions of
// a repository readable by the server.
func (s *Server) handleValidateGit(c echo.Context) error {
	var req runner.GitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.runner.RunGit(c.Request().Context(), req)
	if err != nil {
		return s.runError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) runError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, runner.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, revision.ErrRevisionAccess):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Error(c.Request().Context(), "validation run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "validation failed")
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
