// Package models holds HTTP request and response bodies.
package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DataResponse wraps dashboard payloads
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Keyword  string `json:"keyword" validate:"required"`
	Location string `json:"location" validate:"required"`
	Radius   int    `json:"radius" validate:"required,gt=0,lte=50000"`
}

// StatusResponse is the body of GET /status/:businessId
type StatusResponse struct {
	ScrapingStatus string `json:"scraping_status"`
}

// AddBusinessRequest is the body of POST /business
type AddBusinessRequest struct {
	Name        string            `json:"name" validate:"required"`
	Address     string            `json:"address" validate:"required"`
	Niche       string            `json:"niche" validate:"required"`
	Phone       string            `json:"phone"`
	Website     string            `json:"website" validate:"omitempty,url"`
	Category    string            `json:"category"`
	Emails      []string          `json:"emails" validate:"omitempty,dive,email"`
	SocialMedia map[string]string `json:"social_media"`
}

// RemoveBusinessesRequest is the body of DELETE /dashboard/businesses
type RemoveBusinessesRequest struct {
	BusinessIDs []string `json:"businessIds" validate:"required,min=1"`
}

// OutreachRequest is the body of POST /dashboard/outreach
type OutreachRequest struct {
	BusinessID string `json:"businessId" validate:"required"`
	TemplateID *int64 `json:"templateId"`
}
