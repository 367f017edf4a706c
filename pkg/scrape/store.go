package scrape

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/scraper"
)

// Status is the lifecycle state of a website crawl
type Status string

// Crawl states
const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusEmpty      Status = "empty"
	StatusFailed     Status = "failed"
)

// Triggerable reports whether a crawl may start from s
func (s Status) Triggerable() bool {
	switch s {
	case StatusNotStarted, StatusEmpty, StatusFailed:
		return true
	}
	return false
}

// Info is the scraped data of a business
type Info struct {
	BusinessID    string            `json:"business_id"`
	Website       *string           `json:"website"`
	Emails        []string          `json:"email"`
	SocialMedia   map[string]string `json:"social_media"`
	Directories   map[string]string `json:"directories"`
	LogoURL       *string           `json:"logo_url"`
	ServiceImages []string          `json:"service_images"`
	Status        Status            `json:"scraping_status"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

var infoColumns = []string{
	"business_id", "website", "email", "social_media", "directories", "logo_url", "service_images",
	"scraping_status", "updated_at",
}

// Store persists business_info rows
type Store struct {
	db *database.Client
}

// NewStore creates a Store
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

func scanInfo(row interface{ Scan(...any) error }) (*Info, error) {
	var (
		info        Info
		emails      database.JSON[[]string]
		social      database.JSON[map[string]string]
		directories database.JSON[map[string]string]
		images      database.JSON[[]string]
	)
	err := row.Scan(&info.BusinessID, &info.Website, &emails, &social, &directories, &info.LogoURL, &images,
		&info.Status, &info.UpdatedAt)
	if err != nil {
		return nil, err
	}
	info.Emails = emails.V
	info.SocialMedia = social.V
	info.Directories = directories.V
	info.ServiceImages = images.V
	return &info, nil
}

// Get returns the scraped data of a business, or nil when it has none
func (s *Store) Get(ctx context.Context, businessID string) (*Info, error) {
	query, args, err := s.db.Builder().
		Select(infoColumns...).
		From("business_info").
		Where(sq.Eq{"business_id": businessID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build business_info query: %w", err)
	}

	info, err := scanInfo(s.db.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load business_info of %s: %w", businessID, err)
	}
	return info, nil
}

// ListByIDs returns the scraped data of the given businesses keyed by id
func (s *Store) ListByIDs(ctx context.Context, ids []string) (map[string]Info, error) {
	out := make(map[string]Info, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := s.db.Builder().
		Select(infoColumns...).
		From("business_info").
		Where(sq.Eq{"business_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build business_info query: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query business_info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business_info: %w", err)
		}
		out[info.BusinessID] = *info
	}
	return out, rows.Err()
}

// Claim moves a business to in_progress when no crawl has run yet or the last
// one ended empty or failed. It reports whether the claim succeeded, so only
// one caller across processes starts the crawl.
func (s *Store) Claim(ctx context.Context, businessID string) (bool, error) {
	// The conflict branch only fires from a triggerable state
	query, args, err := s.db.Builder().
		Insert("business_info").
		Columns("business_id", "scraping_status", "updated_at").
		Values(businessID, string(StatusInProgress), time.Now().UTC()).
		Suffix(`ON CONFLICT (business_id) DO UPDATE SET
			scraping_status = EXCLUDED.scraping_status,
			updated_at = EXCLUDED.updated_at
			WHERE business_info.scraping_status IN (?, ?, ?)`,
			string(StatusNotStarted), string(StatusEmpty), string(StatusFailed)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build claim: %w", err)
	}

	res, err := s.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim crawl of %s: %w", businessID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim crawl of %s: %w", businessID, err)
	}
	return n > 0, nil
}

// SetStatus stores the crawl status of a business, creating its row if needed
func (s *Store) SetStatus(ctx context.Context, businessID string, status Status) error {
	query, args, err := s.db.Builder().
		Insert("business_info").
		Columns("business_id", "scraping_status", "updated_at").
		Values(businessID, string(status), time.Now().UTC()).
		Suffix(`ON CONFLICT (business_id) DO UPDATE SET
			scraping_status = EXCLUDED.scraping_status,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}

	if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set status of %s to %s: %w", businessID, status, err)
	}
	return nil
}

// SaveResult stores a finished crawl and returns the resulting status:
// completed when anything was found, otherwise empty. Empty collections are
// stored as NULL.
func (s *Store) SaveResult(ctx context.Context, businessID string, result *scraper.Result) (Status, error) {
	status := StatusEmpty
	if result.HasData() {
		status = StatusCompleted
	}

	var website, logo *string
	if result.Website != "" {
		website = &result.Website
	}
	if result.LogoURL != "" {
		logo = &result.LogoURL
	}

	query, args, err := s.db.Builder().
		Insert("business_info").
		Columns(infoColumns...).
		Values(businessID, website, nonEmpty(result.Emails), nonEmptyMap(result.SocialMedia),
			nonEmptyMap(result.Directories), logo, nonEmpty(result.ServiceImages), string(status),
			time.Now().UTC()).
		Suffix(`ON CONFLICT (business_id) DO UPDATE SET
			website = EXCLUDED.website,
			email = EXCLUDED.email,
			social_media = EXCLUDED.social_media,
			directories = EXCLUDED.directories,
			logo_url = EXCLUDED.logo_url,
			service_images = EXCLUDED.service_images,
			scraping_status = EXCLUDED.scraping_status,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build scrape result upsert: %w", err)
	}

	if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to save scrape result of %s: %w", businessID, err)
	}
	return status, nil
}

// ManualInfo is contact data entered by hand for a business
type ManualInfo struct {
	Website     *string
	Emails      []string
	SocialMedia map[string]string
}

// CreateManual inserts the business_info row of a manually added business
// with status not_started
func (s *Store) CreateManual(ctx context.Context, q database.Querier, businessID string, in ManualInfo) error {
	query, args, err := s.db.Builder().
		Insert("business_info").
		Columns("business_id", "website", "email", "social_media", "scraping_status", "updated_at").
		Values(businessID, in.Website, nonEmpty(in.Emails), nonEmptyMap(in.SocialMedia),
			string(StatusNotStarted), time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build business_info insert: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert business_info of %s: %w", businessID, err)
	}
	return nil
}

// MarkStale fails crawls that have been in progress since before cutoff and
// returns how many were changed
func (s *Store) MarkStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.db.Builder().
		Update("business_info").
		Set("scraping_status", string(StatusFailed)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"scraping_status": string(StatusInProgress)}).
		Where(sq.Lt{"updated_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build stale update: %w", err)
	}

	res, err := s.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale crawls: %w", err)
	}
	return res.RowsAffected()
}

func nonEmpty(v []string) database.JSON[[]string] {
	return database.JSON[[]string]{V: v, Valid: len(v) > 0}
}

func nonEmptyMap(v map[string]string) database.JSON[map[string]string] {
	return database.JSON[map[string]string]{V: v, Valid: len(v) > 0}
}
