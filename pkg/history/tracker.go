// Package history records which businesses a user's searches produced.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/logger"
)

// ErrEmptyBusinessIDs is returned when a search is recorded without results
var ErrEmptyBusinessIDs = errors.New("business ids must not be empty")

// Row is one search session of a user
type Row struct {
	SearchID    int64     `json:"search_id"`
	UserID      int       `json:"user_id"`
	Keyword     string    `json:"query_keyword"`
	Location    string    `json:"location"`
	BusinessIDs []string  `json:"business_ids"`
	SearchDate  time.Time `json:"search_date"`
}

// Identified is anything carrying a business id
type Identified interface {
	Identifier() string
}

// IDsFrom extracts the business ids of items, skipping blanks
func IDsFrom[T Identified](items []T) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id := it.Identifier(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

var rowColumns = []string{"search_id", "user_id", "query_keyword", "location", "business_ids", "search_date"}

// Tracker stores search history rows
type Tracker struct {
	db     *database.Client
	logger logger.Logger
}

// NewTracker creates a Tracker
func NewTracker(db *database.Client, log logger.Logger) *Tracker {
	return &Tracker{db: db, logger: logger.OrDefault(log).With("component", "history")}
}

func scanRow(row interface{ Scan(...any) error }) (*Row, error) {
	var (
		r   Row
		ids database.JSON[[]string]
	)
	if err := row.Scan(&r.SearchID, &r.UserID, &r.Keyword, &r.Location, &ids, &r.SearchDate); err != nil {
		return nil, err
	}
	r.BusinessIDs = ids.V
	if r.BusinessIDs == nil {
		r.BusinessIDs = []string{}
	}
	return &r, nil
}

func (t *Tracker) queryRows(ctx context.Context, q database.Querier, builder sq.SelectBuilder) ([]Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search history: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RecordSearch stores the ids a search produced. When the user's most recent
// row for the same keyword and location holds exactly one id, the new ids are
// appended to it and its date refreshed; otherwise a new row is inserted.
func (t *Tracker) RecordSearch(ctx context.Context, userID int, keyword, location string, ids []string) (*Row, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBusinessIDs
	}

	var result *Row
	err := t.db.WithTx(ctx, func(tx *sql.Tx) error {
		latest := t.db.Builder().
			Select(rowColumns...).
			From("user_searched_businesses").
			Where(sq.Eq{"user_id": userID, "query_keyword": keyword, "location": location}).
			OrderBy("search_date DESC", "search_id DESC").
			Limit(1)
		if t.db.Dialect == database.Postgres {
			latest = latest.Suffix("FOR UPDATE")
		}

		found, err := t.queryRows(ctx, tx, latest)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if len(found) == 1 && len(found[0].BusinessIDs) == 1 {
			row := found[0]
			row.BusinessIDs = append(row.BusinessIDs, ids...)
			row.SearchDate = now
			if err := t.update(ctx, tx, &row); err != nil {
				return err
			}
			result = &row
			return nil
		}

		row := Row{
			UserID:      userID,
			Keyword:     keyword,
			Location:    location,
			BusinessIDs: append([]string(nil), ids...),
			SearchDate:  now,
		}
		if err := t.insert(ctx, tx, &row); err != nil {
			return err
		}
		result = &row
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("search recorded", "user_id", userID, "search_id", result.SearchID, "ids", len(result.BusinessIDs))
	return result, nil
}

// Insert stores a new row for ids without applying the continuation rule.
// It runs on q so callers can include it in their own transaction.
func (t *Tracker) Insert(ctx context.Context, q database.Querier, userID int, keyword, location string, ids []string) (*Row, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBusinessIDs
	}
	row := &Row{
		UserID:      userID,
		Keyword:     keyword,
		Location:    location,
		BusinessIDs: append([]string(nil), ids...),
		SearchDate:  time.Now().UTC(),
	}
	if err := t.insert(ctx, q, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (t *Tracker) insert(ctx context.Context, q database.Querier, r *Row) error {
	query, args, err := t.db.Builder().
		Insert("user_searched_businesses").
		Columns("user_id", "query_keyword", "location", "business_ids", "search_date").
		Values(r.UserID, r.Keyword, r.Location, database.NewJSON(r.BusinessIDs), r.SearchDate).
		Suffix("RETURNING search_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build history insert: %w", err)
	}

	if err := q.QueryRowContext(ctx, query, args...).Scan(&r.SearchID); err != nil {
		return fmt.Errorf("failed to insert search history: %w", err)
	}
	return nil
}

func (t *Tracker) update(ctx context.Context, q database.Querier, r *Row) error {
	query, args, err := t.db.Builder().
		Update("user_searched_businesses").
		Set("business_ids", database.NewJSON(r.BusinessIDs)).
		Set("search_date", r.SearchDate).
		Where(sq.Eq{"search_id": r.SearchID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build history update: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update search history %d: %w", r.SearchID, err)
	}
	return nil
}

// Latest returns the user's most recent search row, or nil when there is none
func (t *Tracker) Latest(ctx context.Context, userID int) (*Row, error) {
	found, err := t.queryRows(ctx, t.db.DB, t.db.Builder().
		Select(rowColumns...).
		From("user_searched_businesses").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("search_date DESC", "search_id DESC").
		Limit(1))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// ListForUser returns every search row of the user, oldest first
func (t *Tracker) ListForUser(ctx context.Context, userID int) ([]Row, error) {
	found, err := t.queryRows(ctx, t.db.DB, t.db.Builder().
		Select(rowColumns...).
		From("user_searched_businesses").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("search_date", "search_id"))
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []Row{}
	}
	return found, nil
}

// UnionIDs returns every business id across all of the user's searches, in
// first-seen order without duplicates
func (t *Tracker) UnionIDs(ctx context.Context, userID int) ([]string, error) {
	rows, err := t.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	ids := []string{}
	for _, r := range rows {
		for _, id := range r.BusinessIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// EarliestSearchDates maps each business id in the user's history to the
// date of the first search that returned it
func (t *Tracker) EarliestSearchDates(ctx context.Context, userID int) (map[string]time.Time, error) {
	rows, err := t.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	dates := make(map[string]time.Time)
	for _, r := range rows {
		for _, id := range r.BusinessIDs {
			if d, ok := dates[id]; !ok || r.SearchDate.Before(d) {
				dates[id] = r.SearchDate
			}
		}
	}
	return dates, nil
}

// RemoveBusinesses drops ids from every search row of the user and returns the
// number of rows changed
func (t *Tracker) RemoveBusinesses(ctx context.Context, userID int, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	changed := 0
	err := t.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := t.queryRows(ctx, tx, t.db.Builder().
			Select(rowColumns...).
			From("user_searched_businesses").
			Where(sq.Eq{"user_id": userID}))
		if err != nil {
			return err
		}

		for _, r := range rows {
			kept := make([]string, 0, len(r.BusinessIDs))
			for _, id := range r.BusinessIDs {
				if !drop[id] {
					kept = append(kept, id)
				}
			}
			if len(kept) == len(r.BusinessIDs) {
				continue
			}

			query, args, err := t.db.Builder().
				Update("user_searched_businesses").
				Set("business_ids", database.NewJSON(kept)).
				Where(sq.Eq{"search_id": r.SearchID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build history update: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to remove businesses from search %d: %w", r.SearchID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
