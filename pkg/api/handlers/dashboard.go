package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/leadscope/pkg/api/errors"
	custommw "github.com/jordanlanch/leadscope/pkg/api/middleware"
	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/dashboard"
	"github.com/jordanlanch/leadscope/pkg/models"
)

// DashboardService serves the user's collected businesses and outreach
type DashboardService interface {
	ListBusinesses(ctx context.Context, userID int, f dashboard.Filter) ([]dashboard.Entry, error)
	RemoveBusinesses(ctx context.Context, userID int, ids []string) (int, error)
	Export(ctx context.Context, w io.Writer, userID int, f dashboard.Filter, format string) (int, error)
	OutreachStatus(ctx context.Context, userID int) ([]dashboard.OutreachEntry, error)
	RecordOutreach(ctx context.Context, userID int, businessID string, templateID *int64) (*dashboard.Outreach, error)
	ListFollowUps(ctx context.Context, userID int, now time.Time) ([]dashboard.FollowUp, error)
	MarkFollowUpDone(ctx context.Context, userID int, followUpID int64) error
}

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	service   DashboardService
	validator *validator.Validate
	now       func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardService) *DashboardHandler {
	return &DashboardHandler{
		service:   service,
		validator: validator.New(),
		now:       time.Now,
	}
}

// filterFromQuery reads niche, address, scraped and outreach_sent
func filterFromQuery(c echo.Context) (dashboard.Filter, error) {
	f := dashboard.Filter{
		Niche:   c.QueryParam("niche"),
		Address: c.QueryParam("address"),
	}

	for name, dst := range map[string]**bool{"scraped": &f.Scraped, "outreach_sent": &f.OutreachSent} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = &v
	}
	return f, nil
}

// ListBusinesses godoc
// @Summary List dashboard businesses
// @Description Lists every business across the user's searches with scrape and outreach flags
// @Tags Dashboard
// @Produce json
// @Param niche query string false "Niche contains"
// @Param address query string false "Address contains"
// @Param scraped query bool false "Only scraped or not scraped businesses"
// @Param outreach_sent query bool false "Only contacted or not contacted businesses"
// @Success 200 {object} models.DataResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/businesses [get]
func (h *DashboardHandler) ListBusinesses(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	f, err := filterFromQuery(c)
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	entries, err := h.service.ListBusinesses(c.Request().Context(), userID, f)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.DataResponse{Success: true, Data: entries})
}

// RemoveBusinesses godoc
// @Summary Remove businesses from the dashboard
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param request body models.RemoveBusinessesRequest true "Business IDs"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/businesses [delete]
func (h *DashboardHandler) RemoveBusinesses(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	var req models.RemoveBusinessesRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.MissingParameters(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.MissingParameters(c, err)
	}

	if _, err := h.service.RemoveBusinesses(c.Request().Context(), userID, req.BusinessIDs); err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Businesses removed successfully",
	})
}

// Export godoc
// @Summary Export dashboard businesses
// @Tags Dashboard
// @Produce octet-stream
// @Param format query string false "csv or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/businesses/export [get]
func (h *DashboardHandler) Export(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	format := c.QueryParam("format")
	if format == "" {
		format = dashboard.FormatCSV
	}
	f, err := filterFromQuery(c)
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	// buffered so a failure can still be answered with JSON
	var buf bytes.Buffer
	_, err = h.service.Export(c.Request().Context(), &buf, userID, f, format)
	if errors.Is(err, dashboard.ErrUnsupportedFormat) {
		return apierrors.BadRequest(c, "Unsupported export format. Use csv or xlsx.")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	filename := fmt.Sprintf("businesses_%s.%s", h.now().UTC().Format("20060102"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, dashboard.ContentType(format), buf.Bytes())
}

// OutreachStatus godoc
// @Summary List contactable businesses
// @Description Lists the businesses with scraped emails and whether they were contacted
// @Tags Dashboard
// @Produce json
// @Success 200 {object} models.DataResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/outreach [get]
func (h *DashboardHandler) OutreachStatus(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	entries, err := h.service.OutreachStatus(c.Request().Context(), userID)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.DataResponse{Success: true, Data: entries})
}

// RecordOutreach godoc
// @Summary Record an outreach
// @Description Logs a contact with a business and opens its follow-up
// @Tags Dashboard
// @Accept json
// @Produce json
// @Param request body models.OutreachRequest true "Outreach"
// @Success 201 {object} models.DataResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/outreach [post]
func (h *DashboardHandler) RecordOutreach(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	var req models.OutreachRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.MissingParameters(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.MissingParameters(c, err)
	}

	outreach, err := h.service.RecordOutreach(c.Request().Context(), userID, req.BusinessID, req.TemplateID)
	if errors.Is(err, business.ErrNotFound) {
		return apierrors.NotFoundError(c, "Business not found")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusCreated, models.DataResponse{Success: true, Data: outreach})
}

// ListFollowUps godoc
// @Summary List follow-ups
// @Tags Dashboard
// @Produce json
// @Success 200 {object} models.DataResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/followups [get]
func (h *DashboardHandler) ListFollowUps(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	followUps, err := h.service.ListFollowUps(c.Request().Context(), userID, h.now())
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.DataResponse{Success: true, Data: followUps})
}

// MarkFollowUpDone godoc
// @Summary Close a follow-up
// @Tags Dashboard
// @Produce json
// @Param id path int true "Follow-up ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /dashboard/followups/{id}/done [patch]
func (h *DashboardHandler) MarkFollowUpDone(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apierrors.BadRequest(c, "Invalid follow-up id")
	}

	err = h.service.MarkFollowUpDone(c.Request().Context(), userID, id)
	if errors.Is(err, dashboard.ErrFollowUpNotFound) {
		return apierrors.NotFoundError(c, "Follow-up not found")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Follow-up marked as done"})
}
