package main

// @title LeadScope API
// @version 1.0
// @description Local business discovery, competitor ranking and outreach tracking.

// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/jordanlanch/leadscope/config"
	"github.com/jordanlanch/leadscope/pkg/api/handlers"
	custommw "github.com/jordanlanch/leadscope/pkg/api/middleware"
	"github.com/jordanlanch/leadscope/pkg/app"
	"github.com/jordanlanch/leadscope/pkg/auth"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/metrics"
	custommiddleware "github.com/jordanlanch/leadscope/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	appLogger := logger.New(cfg.LogLevel)
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	a, err := app.New(cfg, appLogger, prometheusMetrics)
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer a.Close()
	if a.Cache == nil {
		log.Printf("ℹ️  Redis disabled: geocoding cache off, scrape locks are per process, tokens cannot be revoked")
	}

	if err := a.Cron.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to set up cron jobs: %v", err)
	}
	a.Cron.Start()

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go reportDBStats(statsCtx, a, prometheusMetrics)

	e := echo.New()
	e.HideBanner = true

	rateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				appLogger.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status,
					"latency", v.Latency, "error", v.Error)
				return nil
			}
			appLogger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))
	e.Use(rateLimiter.RateLimitMiddleware())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "LeadScope API",
			"version":     "1.0.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := map[string]any{"status": "healthy", "database": "up", "cache": "disabled"}
		code := http.StatusOK
		if err := a.DB.Ping(ctx); err != nil {
			status["status"], status["database"] = "unhealthy", "down"
			code = http.StatusServiceUnavailable
		}
		if a.Cache != nil {
			status["cache"] = "up"
			if err := a.Cache.Ping(ctx); err != nil {
				status["status"], status["cache"] = "unhealthy", "down"
				code = http.StatusServiceUnavailable
			}
		}
		return c.JSON(code, status)
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/docs/swagger.yaml", func(c echo.Context) error {
		return c.File("./docs/swagger.yaml")
	})
	e.GET("/swagger/*", echoSwagger.EchoWrapHandler(echoSwagger.URL("/docs/swagger.yaml")))

	var blacklist *auth.TokenBlacklist
	if a.Cache != nil {
		blacklist = auth.NewTokenBlacklist(a.Cache)
	}
	requireAuth := custommw.JWTMiddlewareWithBlacklist(cfg.JWTSecret, blacklist)

	searchHandler := handlers.NewSearchHandler(a.Search, a.Orchestrator)
	dashboardHandler := handlers.NewDashboardHandler(a.Dashboard)

	api := e.Group("", requireAuth)
	api.POST("/search", searchHandler.Search)
	api.POST("/business", searchHandler.AddBusiness)
	api.GET("/business/:businessId/details", searchHandler.Details)
	api.GET("/status/:businessId", searchHandler.Status)

	dash := api.Group("/dashboard")
	dash.GET("/businesses", dashboardHandler.ListBusinesses)
	dash.DELETE("/businesses", dashboardHandler.RemoveBusinesses)
	dash.GET("/businesses/export", dashboardHandler.Export)
	dash.GET("/outreach", dashboardHandler.OutreachStatus)
	dash.POST("/outreach", dashboardHandler.RecordOutreach)
	dash.GET("/followups", dashboardHandler.ListFollowUps)
	dash.PATCH("/followups/:id/done", dashboardHandler.MarkFollowUpDone)

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 LeadScope API starting on %s", address)
	log.Printf("🌍 CORS: %v", cfg.CORSAllowedOrigins)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("🕷️  Scraper: %d workers, queue %d, browser %t", cfg.ScraperWorkers, cfg.ScraperQueueSize, cfg.ScraperBrowser)

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	a.Cron.Stop()
	log.Println("✅ Cron jobs stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	// queued crawls are marked failed and retried by the next details request
	if err := a.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Scrape workers did not stop cleanly: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// reportDBStats publishes the open connection count every 15 seconds
func reportDBStats(ctx context.Context, a *app.App, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateDBConnections(float64(a.DB.Stats().OpenConnections))
		}
	}
}
