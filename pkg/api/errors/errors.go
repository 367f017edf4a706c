package errors

import (
	"log"
	"net/http"

	"github.com/jordanlanch/leadscope/pkg/models"
	"github.com/labstack/echo/v4"
)

// MissingParameters returns the 400 body for requests lacking required fields
func MissingParameters(c echo.Context, err error) error {
	if err != nil {
		log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
	}

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: "Missing required parameters",
	})
}

// BadRequest returns a 400 with a message safe to show the caller
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: message,
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	// Log the actual error for debugging
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: "Internal server error",
	})
}

// UnauthorizedError returns a 401 with a machine readable code
func UnauthorizedError(c echo.Context, code, message string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// NotFoundError returns a 404 naming what was missing
func NotFoundError(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error: message,
	})
}
