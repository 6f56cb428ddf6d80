package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/cmsbuild/internal/backend/database"
	"github.com/jo-hoe/cmsbuild/internal/core"
	"github.com/labstack/echo/v4"
)

// Builder is the part of the core service the API exposes
type Builder interface {
	Build(ctx context.Context, collections []string) (*core.Report, error)
	ListRuns() ([]*database.Run, error)
	GetRun(id string) (*core.RunDetails, error)
}

type APIService struct {
	config  *core.ServiceConfig
	builder Builder
}

// BuildRequest selects the collections of a build; empty builds all of them
type BuildRequest struct {
	Collections []string `json:"collections" validate:"dive,required"`
}

func NewAPIService(config *core.ServiceConfig, builder Builder) *APIService {
	return &APIService{
		config:  config,
		builder: builder,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	e.GET("/api/runs", s.handleListRuns)
	e.GET("/api/runs/:id", s.handleGetRun)
	e.POST("/api/build", s.handleBuild)

	// Serve the generated JSON files and images
	e.Static("/build", s.config.BuildDir)
}

func (s *APIService) handleListRuns(c echo.Context) error {
	runs, err := s.builder.ListRuns()
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *APIService) handleGetRun(c echo.Context) error {
	id := c.Param("id")
	details, err := s.builder.GetRun(id)
	if errors.Is(err, core.ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		slog.Error("failed to get run", "id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}
	return c.JSON(http.StatusOK, details)
}

func (s *APIService) handleBuild(c echo.Context) error {
	request := new(BuildRequest)
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(request); err != nil {
		return err
	}

	// A disconnecting client does not cancel the run
	report, err := s.builder.Build(context.WithoutCancel(c.Request().Context()), request.Collections)
	switch {
	case errors.Is(err, core.ErrBuildInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrUnknownCollection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil && report == nil:
		slog.Error("build could not be started", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start build")
	case err != nil:
		// The run exists in the ledger, report it with its failed status
		slog.Error("build failed", "run_id", report.RunID, "error", err)
		return c.JSON(http.StatusInternalServerError, report)
	}

	return c.JSON(http.StatusOK, report)
}
