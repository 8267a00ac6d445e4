// Package server exposes the flavor resolver and the migration savings engine
// over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"flavorwise/internal/core"
	"flavorwise/internal/report"
	"flavorwise/internal/resolver"
)

// Finder answers flavor lookups.
type Finder interface {
	FindFlavor(ctx context.Context, req core.FindRequest) (*core.FlavorRecord, error)
	FindCandidates(ctx context.Context, req core.FindRequest) ([]core.FlavorRecord, error)
	FindMany(ctx context.Context, cloud core.CloudType, resourceType core.ResourceType, queries []resolver.FlavorQuery) map[string]core.FlavorRecord
}

// Recommender computes migration recommendations.
type Recommender interface {
	Recommend(ctx context.Context, accounts []core.CloudAccount) ([]core.MigrationRecommendation, error)
}

// CloudLister lists the configured clouds.
type CloudLister interface {
	Clouds() []core.CloudType
}

// Reports reads saved savings reports.
type Reports interface {
	Get(ctx context.Context, id string) (*report.Report, error)
	List(ctx context.Context, limit int, after string) ([]*report.Report, error)
}

// BatchRequest is the body of POST /v1/flavors/batch.
type BatchRequest struct {
	CloudType    core.CloudType         `json:"cloud_type" validate:"required"`
	ResourceType core.ResourceType      `json:"resource_type" validate:"required,oneof=instance rds_instance"`
	Queries      []resolver.FlavorQuery `json:"queries" validate:"required,min=1,dive"`
}

// SavingsRequest is the body of POST /v1/migration/savings.
type SavingsRequest struct {
	Accounts []core.CloudAccount `json:"accounts" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Handler holds the HTTP handlers
type Handler struct {
	finder      Finder
	recommender Recommender
	clouds      CloudLister
	reports     Reports
}

// NewHandler creates a new handler. recommender may be nil when no Nebius
// adapter is configured, and reports may be nil when runs are not saved.
func NewHandler(finder Finder, recommender Recommender, clouds CloudLister, reports Reports) *Handler {
	return &Handler{finder: finder, recommender: recommender, clouds: clouds, reports: reports}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListClouds handles GET /v1/clouds
func (h *Handler) ListClouds(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"clouds": h.clouds.Clouds()})
}

// FindFlavor handles POST /v1/flavors/find
func (h *Handler) FindFlavor(c echo.Context) error {
	var req core.FindRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request body: "+err.Error(), err))
	}

	rec, err := h.finder.FindFlavor(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// FindCandidates handles POST /v1/flavors/candidates
func (h *Handler) FindCandidates(c echo.Context) error {
	var req core.FindRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request body: "+err.Error(), err))
	}

	candidates, err := h.finder.FindCandidates(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"candidates": candidates})
}

// FindMany handles POST /v1/flavors/batch. Unresolved flavors are left out
// of the response.
func (h *Handler) FindMany(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request body: "+err.Error(), err))
	}
	if err := validate.Struct(req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request: "+err.Error(), err))
	}
	if _, err := core.ParseCloudType(string(req.CloudType)); err != nil {
		return handleError(c, err)
	}

	flavors := h.finder.FindMany(c.Request().Context(), req.CloudType, req.ResourceType, req.Queries)
	return c.JSON(http.StatusOK, map[string]interface{}{"flavors": flavors})
}

// Savings handles POST /v1/migration/savings
func (h *Handler) Savings(c echo.Context) error {
	if h.recommender == nil {
		return handleError(c, core.NewInvalidArgumentError("migration savings require a configured nebius provider", nil))
	}

	var req SavingsRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request body: "+err.Error(), err))
	}
	if err := validate.Struct(req); err != nil {
		return handleError(c, core.NewInvalidArgumentError("invalid request: "+err.Error(), err))
	}

	recs, err := h.recommender.Recommend(c.Request().Context(), req.Accounts)
	if err != nil {
		return handleError(c, err)
	}
	if recs == nil {
		recs = []core.MigrationRecommendation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"recommendations": recs})
}

// ListReports handles GET /v1/migration/reports
func (h *Handler) ListReports(c echo.Context) error {
	if h.reports == nil {
		return handleError(c, core.NewNotFoundError("", "savings reports are not stored"))
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return handleError(c, core.NewInvalidArgumentError("limit must be a non-negative integer", err))
		}
		limit = n
	}

	items, err := h.reports.List(c.Request().Context(), limit, c.QueryParam("after"))
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("", "report not found: "+c.QueryParam("after")))
		}
		return handleError(c, err)
	}
	if items == nil {
		items = []*report.Report{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"reports": items})
}

// GetReport handles GET /v1/migration/reports/:id
func (h *Handler) GetReport(c echo.Context) error {
	if h.reports == nil {
		return handleError(c, core.NewNotFoundError("", "savings reports are not stored"))
	}

	id := c.Param("id")
	rep, err := h.reports.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("", "report not found: "+id))
		}
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// handleError converts typed errors to HTTP responses
func handleError(c echo.Context, err error) error {
	var typed *core.Error
	if errors.As(err, &typed) {
		return c.JSON(typed.HTTPStatusCode(), typed.ToJSON())
	}

	slog.Error("unexpected request error", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
