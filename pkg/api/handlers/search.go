package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/leadscope/pkg/api/errors"
	custommw "github.com/jordanlanch/leadscope/pkg/api/middleware"
	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/models"
	"github.com/jordanlanch/leadscope/pkg/scrape"
	"github.com/jordanlanch/leadscope/pkg/search"
)

// SearchService runs discovery and builds business views
type SearchService interface {
	Search(ctx context.Context, userID int, keyword, location string, radius int) (*search.Result, error)
	Details(ctx context.Context, userID int, businessID string) (*search.DetailsView, error)
	AddBusiness(ctx context.Context, userID int, in search.AddBusinessInput) (*search.AddBusinessResult, error)
}

// StatusReader reports crawl states
type StatusReader interface {
	Status(ctx context.Context, businessID string) (scrape.Status, error)
}

// SearchHandler handles search, business details and crawl status
type SearchHandler struct {
	service   SearchService
	status    StatusReader
	validator *validator.Validate
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service SearchService, status StatusReader) *SearchHandler {
	return &SearchHandler{
		service:   service,
		status:    status,
		validator: validator.New(),
	}
}

// Search godoc
// @Summary Search businesses around a location
// @Description Discovers businesses for a keyword, stores them in the user's history, ranks competitors and returns the latest search with map data
// @Tags Search
// @Accept json
// @Produce json
// @Param request body models.SearchRequest true "Search parameters"
// @Success 200 {object} search.Result
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /search [post]
func (h *SearchHandler) Search(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.MissingParameters(c, err)
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	req.Location = strings.TrimSpace(req.Location)
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Radius" && verrs[0].Tag() != "required" {
			return apierrors.BadRequest(c, "Radius must be between 1 and 50000 meters.")
		}
		return apierrors.MissingParameters(c, err)
	}

	result, err := h.service.Search(c.Request().Context(), userID, req.Keyword, req.Location, req.Radius)
	if err != nil {
		return apierrors.InternalError(c, err)
	}
	if result == nil || len(result.Businesses) == 0 {
		return apierrors.NotFoundError(c, "No businesses found")
	}

	return c.JSON(http.StatusOK, result)
}

// Details godoc
// @Summary Get business details
// @Description Returns a business with its competitors, map data and scraped contact data. Starts a website crawl when none has succeeded yet.
// @Tags Business
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} search.DetailsView
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /business/{businessId}/details [get]
func (h *SearchHandler) Details(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	businessID := c.Param("businessId")
	if businessID == "" {
		return apierrors.MissingParameters(c, nil)
	}

	view, err := h.service.Details(c.Request().Context(), userID, businessID)
	if errors.Is(err, business.ErrNotFound) {
		return apierrors.NotFoundError(c, "Business not found")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, view)
}

// Status godoc
// @Summary Get crawl status
// @Description Returns the website crawl status of a business
// @Tags Business
// @Produce json
// @Param businessId path string true "Business ID"
// @Success 200 {object} models.StatusResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /status/{businessId} [get]
func (h *SearchHandler) Status(c echo.Context) error {
	businessID := c.Param("businessId")
	if businessID == "" {
		return apierrors.MissingParameters(c, nil)
	}

	status, err := h.status.Status(c.Request().Context(), businessID)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.StatusResponse{ScrapingStatus: string(status)})
}

// AddBusiness godoc
// @Summary Add a business by hand
// @Description Stores a business with its contact data, then discovers and ranks the businesses around it
// @Tags Business
// @Accept json
// @Produce json
// @Param request body models.AddBusinessRequest true "Business"
// @Success 201 {object} search.AddBusinessResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /business [post]
func (h *SearchHandler) AddBusiness(c echo.Context) error {
	userID, ok := custommw.UserID(c)
	if !ok {
		return apierrors.UnauthorizedError(c, "unauthorized", "User not found in context")
	}

	var req models.AddBusinessRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.BadRequest(c, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Niche = strings.TrimSpace(req.Niche)
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() != "required" {
			field, _, _ := strings.Cut(verrs[0].Field(), "[")
			return apierrors.BadRequest(c, "Invalid "+strings.ToLower(field)+".")
		}
		return apierrors.BadRequest(c, "Missing required fields: name, address, or niche.")
	}

	result, err := h.service.AddBusiness(c.Request().Context(), userID, search.AddBusinessInput{
		Name:        req.Name,
		Address:     req.Address,
		Niche:       req.Niche,
		Phone:       req.Phone,
		Website:     req.Website,
		Category:    req.Category,
		Emails:      req.Emails,
		SocialMedia: req.SocialMedia,
	})
	if errors.Is(err, search.ErrInvalidPhone) {
		return apierrors.BadRequest(c, "Invalid phone number.")
	}
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}
