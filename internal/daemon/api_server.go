package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"reelscribe/internal/api"
	"reelscribe/internal/config"
	"reelscribe/internal/logging"
	"reelscribe/internal/workflow"
)

// workflowStatus is the slice of the workflow manager the API reads.
type workflowStatus interface {
	Status(ctx context.Context) workflow.StatusSummary
}

type apiServer struct {
	bind     string
	logger   *slog.Logger
	status   *api.StatusService
	workflow workflowStatus
	echo     *echo.Echo

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg config.API, status *api.StatusService, wf workflowStatus, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &apiServer{
		bind:     strings.TrimSpace(cfg.Bind),
		logger:   logger.With(logging.String(logging.FieldComponent, "api-server")),
		status:   status,
		workflow: wf,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("api request",
				logging.String("method", v.Method),
				logging.String("uri", v.URI),
				logging.Int("status", v.Status),
				logging.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	g := e.Group("/api", authMiddleware(strings.TrimSpace(cfg.Token)))
	g.GET("/summary", s.handleSummary)
	g.GET("/files", s.handleFiles)
	g.GET("/files/:id", s.handleFile)
	g.GET("/files/:id/errors", s.handleFileErrors)
	g.GET("/health", s.handleHealth)
	s.echo = e
	return s
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) workflowStatus(ctx context.Context) *api.WorkflowStatus {
	if s.workflow == nil {
		return nil
	}
	status := api.FromStatusSummary(s.workflow.Status(ctx))
	return &status
}

func (s *apiServer) handleSummary(c echo.Context) error {
	ctx := c.Request().Context()
	summary, err := s.status.Summary(ctx)
	if err != nil {
		return s.writeError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, api.SummaryResponse{Summary: summary, Workflow: s.workflowStatus(ctx)})
}

func (s *apiServer) handleFiles(c echo.Context) error {
	states, err := api.ParseStates(c.QueryParams()["state"])
	if err != nil {
		return s.writeError(c, http.StatusBadRequest, err)
	}
	files, err := s.status.Files(c.Request().Context(), states...)
	if err != nil {
		return s.writeError(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, api.FileListResponse{Files: files})
}

func (s *apiServer) handleFile(c echo.Context) error {
	detail, err := s.status.Describe(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, http.StatusInternalServerError, err)
	}
	if detail == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found"})
	}
	return c.JSON(http.StatusOK, api.FileResponse{File: *detail})
}

func (s *apiServer) handleFileErrors(c echo.Context) error {
	id := c.Param("id")
	records, found, err := s.status.Errors(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, http.StatusInternalServerError, err)
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found"})
	}
	return c.JSON(http.StatusOK, api.ErrorListResponse{FileID: id, Errors: records})
}

func (s *apiServer) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	health, err := s.status.Health(ctx)
	if err != nil {
		return s.writeError(c, http.StatusInternalServerError, err)
	}
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, api.HealthResponse{Database: health, Workflow: s.workflowStatus(ctx)})
}

func (s *apiServer) writeError(c echo.Context, status int, err error) error {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.String("uri", c.Request().RequestURI),
			logging.Error(err),
		)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
