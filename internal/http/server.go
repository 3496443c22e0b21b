// Package http provides the HTTP API for knowledged.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
	"github.com/fyrsmithlabs/knowledged/internal/services"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Server provides HTTP endpoints for knowledged.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	ask      *services.AskService
	metrics  *Metrics
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(registry services.Registry, ask *services.AskService, logger *zap.Logger, cfg *Config) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("service registry cannot be nil")
	}
	if ask == nil {
		return nil, fmt.Errorf("ask service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
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
		echo:     e,
		registry: registry,
		ask:      ask,
		metrics:  NewMetrics(),
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/ask", s.handleAsk)
	v1.GET("/usage", s.handleUsage)

	v1.POST("/organizations", s.handleCreateOrganization)
	v1.GET("/organizations/stats", s.handleOrgStats)
	v1.DELETE("/organizations/:id", s.handleDeleteOrganization)
	v1.GET("/organizations/members", s.handleListMembers)
	v1.DELETE("/organizations/members/:userID", s.handleRemoveMember)
	v1.PUT("/organizations/members/:userID/role", s.handleUpdateMemberRole)
	v1.POST("/organizations/ownership", s.handleTransferOwnership)
	v1.POST("/organizations/leave", s.handleLeave)

	v1.POST("/invites", s.handleCreateInvite)
	v1.GET("/invites/:code", s.handleInviteDetails)
	v1.POST("/invites/:code/redeem", s.handleRedeemInvite)
	v1.DELETE("/invites/:id", s.handleRevokeInvite)

	v1.POST("/documents", s.handleRegisterDocument)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)

	v1.GET("/settings", s.handleGetSettings)
	v1.PUT("/settings", s.handleUpdateSettings)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// actorID extracts the authenticated user from the X-User-ID header set by
// the fronting auth proxy. This service trusts its ingress.
func actorID(c echo.Context) (uuid.UUID, error) {
	raw := c.Request().Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing X-User-ID header")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid X-User-ID header")
	}
	return id, nil
}

// actorContext resolves the caller's tenant context.
func (s *Server) actorContext(c echo.Context) (tenant.Context, error) {
	id, err := actorID(c)
	if err != nil {
		return tenant.Context{}, err
	}
	actor, err := s.registry.Directory().ResolveContext(c.Request().Context(), id)
	if err != nil {
		return tenant.Context{}, s.mapError(err)
	}
	return actor, nil
}

// mapError translates the error taxonomy to HTTP status codes.
func (s *Server) mapError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, kberr.ErrQuotaExceeded):
		if kind, ok := kberr.QuotaKindOf(err); ok {
			s.metrics.QuotaRejections.WithLabelValues(string(kind)).Inc()
		}
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, kberr.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, kberr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, kberr.ErrNameConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, kberr.ErrInviteInvalid):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, kberr.ErrUpstreamTransient):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Echo exposes the underlying router, primarily for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
