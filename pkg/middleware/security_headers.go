package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig holds the policies set on responses. Empty fields fall
// back to DefaultSecurityHeadersConfig.
type SecurityHeadersConfig struct {
	// APIPolicy is the Content-Security-Policy of JSON and export responses
	APIPolicy string
	// DocsPolicy applies under DocsPrefixes, where the swagger UI runs scripts
	DocsPolicy   string
	DocsPrefixes []string

	ReferrerPolicy    string
	PermissionsPolicy string
}

// DefaultSecurityHeadersConfig locks API responses down completely and lets
// the swagger UI load its own assets
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		APIPolicy: "default-src 'none'; frame-ancestors 'none'",
		DocsPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; frame-ancestors 'none'",
		DocsPrefixes:      []string{"/swagger", "/docs"},
		ReferrerPolicy:    "no-referrer",
		PermissionsPolicy: "camera=(), microphone=(), geolocation=()",
	}
}

func (c SecurityHeadersConfig) withDefaults() SecurityHeadersConfig {
	d := DefaultSecurityHeadersConfig()
	if c.APIPolicy == "" {
		c.APIPolicy = d.APIPolicy
	}
	if c.DocsPolicy == "" {
		c.DocsPolicy = d.DocsPolicy
	}
	if c.DocsPrefixes == nil {
		c.DocsPrefixes = d.DocsPrefixes
	}
	if c.ReferrerPolicy == "" {
		c.ReferrerPolicy = d.ReferrerPolicy
	}
	if c.PermissionsPolicy == "" {
		c.PermissionsPolicy = d.PermissionsPolicy
	}
	return c
}

func (c SecurityHeadersConfig) isDocs(path string) bool {
	for _, prefix := range c.DocsPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SecurityHeaders sets the content, referrer and permissions policies. Lead
// data is never cached by intermediaries, so API responses also get
// Cache-Control: no-store.
func SecurityHeaders(config SecurityHeadersConfig) echo.MiddlewareFunc {
	config = config.withDefaults()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			if config.isDocs(c.Request().URL.Path) {
				h.Set("Content-Security-Policy", config.DocsPolicy)
			} else {
				h.Set("Content-Security-Policy", config.APIPolicy)
				h.Set("Cache-Control", "no-store")
			}
			h.Set("Referrer-Policy", config.ReferrerPolicy)
			h.Set("Permissions-Policy", config.PermissionsPolicy)
			return next(c)
		}
	}
}
