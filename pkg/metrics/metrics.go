package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every Record method is safe on a nil
// receiver so components can run without instrumentation in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	SearchesTotal      *prometheus.CounterVec
	BusinessesUpserted *prometheus.CounterVec
	CompetitorsRanked  prometheus.Counter

	// Provider metrics
	MapsAPIRequests *prometheus.CounterVec
	MapsAPIDuration *prometheus.HistogramVec

	// Scrape metrics
	ScrapeJobs         *prometheus.CounterVec
	ScrapeDuration     prometheus.Histogram
	ScrapePagesVisited prometheus.Counter
	ScrapeQueueDepth   prometheus.Gauge

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New registers all metrics with the default Prometheus registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all metrics with reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "business_searches_total",
				Help: "Total number of discovery searches by outcome",
			},
			[]string{"outcome"}, // found, empty, error
		),
		BusinessesUpserted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "businesses_upserted_total",
				Help: "Candidates reconciled against stored businesses",
			},
			[]string{"action"}, // inserted, merged, failed
		),
		CompetitorsRanked: factory.NewCounter(prometheus.CounterOpts{
			Name: "competitor_rankings_total",
			Help: "Total number of businesses whose competitors were ranked",
		}),

		MapsAPIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maps_api_requests_total",
				Help: "Outbound maps provider requests",
			},
			[]string{"api", "code"},
		),
		MapsAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maps_api_request_duration_seconds",
				Help:    "Outbound maps provider latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"api"},
		),

		ScrapeJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_jobs_total",
				Help: "Website scrape jobs by final status",
			},
			[]string{"status"}, // completed, empty, failed, skipped
		),
		ScrapeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scrape_duration_seconds",
			Help:    "Website crawl duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ScrapePagesVisited: factory.NewCounter(prometheus.CounterOpts{
			Name: "scrape_pages_visited_total",
			Help: "Pages fetched by the website crawler",
		}),
		ScrapeQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scrape_queue_depth",
			Help: "Scrape jobs waiting for a worker",
		}),

		DBConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /business/:businessId/details

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// RecordSearch counts a discovery search by outcome
func (m *Metrics) RecordSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

// RecordUpsert counts a reconciled candidate
func (m *Metrics) RecordUpsert(action string) {
	if m == nil {
		return
	}
	m.BusinessesUpserted.WithLabelValues(action).Inc()
}

// RecordCompetitorsRanked adds n ranked targets
func (m *Metrics) RecordCompetitorsRanked(n int) {
	if m == nil {
		return
	}
	m.CompetitorsRanked.Add(float64(n))
}

// RecordMapsCall records one provider request
func (m *Metrics) RecordMapsCall(api string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.MapsAPIRequests.WithLabelValues(api, strconv.Itoa(code)).Inc()
	m.MapsAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// RecordScrape records a finished scrape job
func (m *Metrics) RecordScrape(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeJobs.WithLabelValues(status).Inc()
	if duration > 0 {
		m.ScrapeDuration.Observe(duration.Seconds())
	}
}

// RecordPageVisit counts a crawled page
func (m *Metrics) RecordPageVisit() {
	if m == nil {
		return
	}
	m.ScrapePagesVisited.Inc()
}

// SetScrapeQueueDepth updates the queued job gauge
func (m *Metrics) SetScrapeQueueDepth(n int) {
	if m == nil {
		return
	}
	m.ScrapeQueueDepth.Set(float64(n))
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
