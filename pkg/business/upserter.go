package business

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/maps"
	"github.com/jordanlanch/leadscope/pkg/metrics"
)

// Upserter reconciles provider candidates with stored businesses
type Upserter struct {
	db      *database.Client
	repo    *Repository
	logger  logger.Logger
	metrics *metrics.Metrics

	// mu keeps match+write atomic within the process; the advisory lock
	// taken in each transaction covers other processes.
	mu sync.Mutex
}

// NewUpserter creates an Upserter
func NewUpserter(db *database.Client, repo *Repository, log logger.Logger, m *metrics.Metrics) *Upserter {
	return &Upserter{
		db:      db,
		repo:    repo,
		logger:  logger.OrDefault(log).With("component", "upserter"),
		metrics: m,
	}
}

// Upsert merges each candidate into its matching business or inserts a new
// one, returning the resulting rows in candidate order. Candidates are
// processed one at a time so later candidates see earlier inserts. A failing
// candidate is logged and skipped; an error is returned only when every
// candidate failed.
func (u *Upserter) Upsert(ctx context.Context, candidates []maps.Candidate, keyword string) ([]Business, error) {
	results := make([]Business, 0, len(candidates))
	var lastErr error

	for _, c := range candidates {
		b, err := u.upsertOne(ctx, c, keyword)
		if err != nil {
			lastErr = err
			u.metrics.RecordUpsert("failed")
			u.logger.Error("failed to upsert candidate", "name", c.Name, "place_id", c.PlaceID, "error", err)
			continue
		}
		results = append(results, *b)
	}

	if len(results) == 0 && lastErr != nil {
		return nil, fmt.Errorf("failed to upsert %d candidates: %w", len(candidates), lastErr)
	}
	return results, nil
}

func (u *Upserter) upsertOne(ctx context.Context, c maps.Candidate, keyword string) (*Business, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var (
		result Business
		action string
	)
	err := u.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := u.db.LockBusinessUpsert(ctx, tx); err != nil {
			return err
		}

		existing, err := u.repo.findMatch(ctx, tx, c)
		if err != nil {
			return err
		}

		if existing == nil {
			result = FromCandidate(c, keyword)
			action = "inserted"
			return u.repo.insert(ctx, tx, &result)
		}

		result = Merge(*existing, c, keyword)
		action = "merged"
		return u.repo.update(ctx, tx, &result)
	})
	if err != nil {
		return nil, err
	}

	u.metrics.RecordUpsert(action)
	u.logger.Debug("candidate reconciled", "businessid", result.BusinessID, "action", action)
	return &result, nil
}
