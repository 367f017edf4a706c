package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/scrape"
)

// ScrapeMonitor watches the crawl states stored in business_info
type ScrapeMonitor struct {
	db         *database.Client
	store      *scrape.Store
	staleAfter time.Duration
	logger     logger.Logger
	now        func() time.Time
}

// NewScrapeMonitor creates a monitor that fails crawls in progress for
// longer than staleAfter
func NewScrapeMonitor(db *database.Client, store *scrape.Store, staleAfter time.Duration, log logger.Logger) *ScrapeMonitor {
	return &ScrapeMonitor{
		db:         db,
		store:      store,
		staleAfter: staleAfter,
		logger:     logger.OrDefault(log).With("component", "scrape_monitor"),
		now:        time.Now,
	}
}

// SweepStale marks crawls left in progress by a stopped process as failed so
// the next details request can retry them
func (m *ScrapeMonitor) SweepStale(ctx context.Context) (int64, error) {
	cutoff := m.now().UTC().Add(-m.staleAfter)

	n, err := m.store.MarkStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Warn("stale crawls marked failed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// StatusCounts returns the number of businesses per crawl status
func (m *ScrapeMonitor) StatusCounts(ctx context.Context) (map[scrape.Status]int, error) {
	query, args, err := m.db.Builder().
		Select("scraping_status", "COUNT(*)").
		From("business_info").
		GroupBy("scraping_status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build status count query: %w", err)
	}

	rows, err := m.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count crawl statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[scrape.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[scrape.Status(status)] = count
	}
	return counts, rows.Err()
}
