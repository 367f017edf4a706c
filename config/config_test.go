package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MAPS_BASE_URL", "")
	t.Setenv("SCRAPER_HOMEPAGE_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "https://maps.gomaps.pro/maps/api", cfg.MapsBaseURL)
	assert.Equal(t, 60*time.Second, cfg.ScraperHomepageTimeout)
	assert.Equal(t, 40*time.Second, cfg.ScraperPageTimeout)
	assert.Equal(t, 30*time.Second, cfg.OutboundTimeout)
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCRAPER_WORKERS", "9")
	t.Setenv("SCRAPER_VERIFY_MX", "true")
	t.Setenv("OUTBOUND_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()

	assert.Equal(t, 9, cfg.ScraperWorkers)
	assert.True(t, cfg.ScraperVerifyMX)
	assert.Equal(t, 5*time.Second, cfg.OutboundTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 3, getEnvAsInt("TEST_INT", 3))
	assert.False(t, getEnvAsBool("TEST_BOOL", false))
	assert.Equal(t, time.Minute, getEnvAsDuration("TEST_DURATION", time.Minute))
}
