// Package http provides the read-only inspection API for vigild.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vigild/internal/decision"
	"github.com/fyrsmithlabs/vigild/internal/event"
	"github.com/fyrsmithlabs/vigild/internal/pipeline"
	"github.com/fyrsmithlabs/vigild/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes health, metrics, the stored event log, and the decision
// trail. All endpoints are read-only: events enter the system through
// signal sources, never through this API.
type Server struct {
	echo   *echo.Echo
	store  store.Store
	pipe   *pipeline.Pipeline
	logger *zap.Logger
	config *Config
}

// NewServer creates a new inspection server.
func NewServer(st store.Store, pipe *pipeline.Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9290,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

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
		echo:   e,
		store:  st,
		pipe:   pipe,
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
	v1.GET("/state", s.handleState)
	v1.GET("/events", s.handleEvents)
	v1.GET("/decisions", s.handleDecisions)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StateResponse is the response body for GET /api/v1/state.
type StateResponse struct {
	State        decision.State     `json:"state"`
	LastDecision *decision.Decision `json:"last_decision,omitempty"`
}

// EventsResponse is the response body for GET /api/v1/events.
type EventsResponse struct {
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Count  int            `json:"count"`
	Events []event.Record `json:"events"`
}

// DecisionsResponse is the response body for GET /api/v1/decisions.
type DecisionsResponse struct {
	Count   int              `json:"count"`
	Entries []pipeline.Entry `json:"entries"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, StateResponse{
		State:        s.pipe.State(),
		LastDecision: s.pipe.LastDecision(),
	})
}

// handleEvents returns stored events in [start, end], inclusive on both
// ends like Store.Range, in persistence order. Bounds are RFC 3339
// timestamps.
func (s *Server) handleEvents(c echo.Context) error {
	start, err := parseTimeParam(c, "start")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := parseTimeParam(c, "end")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if end.Before(start) {
		return echo.NewHTTPError(http.StatusBadRequest, "end must not be before start")
	}

	records, err := s.store.Range(c.Request().Context(), start, end)
	if err != nil {
		s.logger.Error("event range read failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event store unavailable")
	}

	return c.JSON(http.StatusOK, EventsResponse{
		Start:  start,
		End:    end,
		Count:  len(records),
		Events: records,
	})
}

func (s *Server) handleDecisions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	entries := s.pipe.Audit().Recent(limit)
	return c.JSON(http.StatusOK, DecisionsResponse{
		Count:   len(entries),
		Entries: entries,
	})
}

func parseTimeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s query parameter is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
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
