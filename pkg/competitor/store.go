package competitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/geo"
)

// MaxCompetitors is the number of nearest peers kept per business
const MaxCompetitors = 3

// Snapshot is a cached copy of one nearby competitor
type Snapshot struct {
	BusinessID string    `json:"businessid"`
	Name       string    `json:"name"`
	Location   geo.Point `json:"location"`
	DistanceM  float64   `json:"distance_m"`
	DistanceKM float64   `json:"distance_km"`
}

// Store persists the competitors table
type Store struct {
	db *database.Client
}

// NewStore creates a competitors store
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// Save replaces the stored competitors of businessID. Slots past len(snaps)
// are stored as NULL.
func (s *Store) Save(ctx context.Context, q database.Querier, businessID string, snaps []Snapshot) error {
	slots := make([]database.JSON[Snapshot], MaxCompetitors)
	for i := 0; i < MaxCompetitors && i < len(snaps); i++ {
		slots[i] = database.NewJSON(snaps[i])
	}

	query, args, err := s.db.Builder().
		Insert("competitors").
		Columns("business_id", "competitor_1", "competitor_2", "competitor_3", "updated_at").
		Values(businessID, slots[0], slots[1], slots[2], time.Now().UTC()).
		Suffix(`ON CONFLICT (business_id) DO UPDATE SET
			competitor_1 = EXCLUDED.competitor_1,
			competitor_2 = EXCLUDED.competitor_2,
			competitor_3 = EXCLUDED.competitor_3,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build competitors upsert: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save competitors of %s: %w", businessID, err)
	}
	return nil
}

// Delete drops the stored competitors of businessID
func (s *Store) Delete(ctx context.Context, q database.Querier, businessID string) error {
	query, args, err := s.db.Builder().
		Delete("competitors").
		Where(sq.Eq{"business_id": businessID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build competitors delete: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete competitors of %s: %w", businessID, err)
	}
	return nil
}

// Get returns the stored competitors of businessID in rank order. found is
// false when no row exists.
func (s *Store) Get(ctx context.Context, businessID string) (snaps []Snapshot, found bool, err error) {
	query, args, err := s.db.Builder().
		Select("competitor_1", "competitor_2", "competitor_3").
		From("competitors").
		Where(sq.Eq{"business_id": businessID}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build competitors query: %w", err)
	}

	var slots [MaxCompetitors]database.JSON[Snapshot]
	err = s.db.DB.QueryRowContext(ctx, query, args...).Scan(&slots[0], &slots[1], &slots[2])
	if errors.Is(err, sql.ErrNoRows) {
		return []Snapshot{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load competitors of %s: %w", businessID, err)
	}

	snaps = make([]Snapshot, 0, MaxCompetitors)
	for _, slot := range slots {
		if slot.Valid {
			snaps = append(snaps, slot.V)
		}
	}
	return snaps, true, nil
}
