package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadscope/config"
	"github.com/jordanlanch/leadscope/pkg/logger"
)

func testConfig(name string) *config.Config {
	return &config.Config{
		DBDriver:           "sqlite3",
		DatabaseURL:        "file:" + name + "?mode=memory&cache=shared",
		MapsBaseURL:        "http://127.0.0.1:1",
		OutboundTimeout:    time.Second,
		DetailsConcurrency: 2,
		ScraperWorkers:     1,
		ScraperQueueSize:   4,
		ScrapeStaleAfter:   time.Minute,
		ScraperPageTimeout: time.Second,
	}
}

func TestNew(t *testing.T) {
	t.Run("Success - without redis", func(t *testing.T) {
		a, err := New(testConfig("app_local"), logger.Nop(), nil)
		require.NoError(t, err)
		defer a.Close()

		assert.Nil(t, a.Cache)
		assert.NotNil(t, a.Search)
		assert.NotNil(t, a.Dashboard)
		assert.NotNil(t, a.Cron)

		status, err := a.Orchestrator.Status(context.Background(), "Biz-1")
		require.NoError(t, err)
		assert.NotEmpty(t, status)

		require.NoError(t, a.Shutdown(context.Background()))
	})

	t.Run("Success - with redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig("app_redis")
		cfg.RedisURL = "redis://" + mr.Addr()

		a, err := New(cfg, logger.Nop(), nil)
		require.NoError(t, err)
		defer a.Close()

		assert.NotNil(t, a.Cache)
		require.NoError(t, a.Shutdown(context.Background()))
	})

	t.Run("Error - unknown driver", func(t *testing.T) {
		cfg := testConfig("app_bad")
		cfg.DBDriver = "mysql"
		_, err := New(cfg, logger.Nop(), nil)
		assert.Error(t, err)
	})

	t.Run("Error - missing rules file", func(t *testing.T) {
		cfg := testConfig("app_rules")
		cfg.ScraperRulesPath = "/nonexistent/rules.yaml"
		_, err := New(cfg, logger.Nop(), nil)
		assert.Error(t, err)
	})
}
