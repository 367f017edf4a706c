package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/maps"
)

// ErrNotFound is returned when a business id does not exist
var ErrNotFound = errors.New("business not found")

var columns = []string{
	"businessid", "seq", "name", "address", "phonenumbers", "website", "category", "niche",
	"rating", "reviewscount", "status", "opening_hours", "reviews", "lat", "lng", "profileurl",
	"created_at", "updated_at",
}

// Repository persists businesses
type Repository struct {
	db *database.Client
}

// NewRepository creates a business repository
func NewRepository(db *database.Client) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusiness(row rowScanner) (*Business, error) {
	var (
		b            Business
		lat, lng     sql.NullFloat64
		openingHours database.JSON[[]string]
		reviews      database.JSON[[]maps.Review]
	)
	err := row.Scan(&b.BusinessID, &b.Seq, &b.Name, &b.Address, &b.Phone, &b.Website, &b.Category, &b.Niche,
		&b.Rating, &b.ReviewsCount, &b.Status, &openingHours, &reviews, &lat, &lng, &b.ProfileURL,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		b.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if openingHours.Valid {
		b.OpeningHours = openingHours.V
	}
	if reviews.Valid {
		b.Reviews = reviews.V
	}
	return &b, nil
}

func (r *Repository) queryBusinesses(ctx context.Context, q database.Querier, builder sq.SelectBuilder) ([]Business, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build business query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query businesses: %w", err)
	}
	defer rows.Close()

	var out []Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// findMatch returns the oldest business matching the candidate, or nil
func (r *Repository) findMatch(ctx context.Context, q database.Querier, c maps.Candidate) (*Business, error) {
	var conds sq.Or
	if p := clean(c.Phone); p != nil {
		conds = append(conds, sq.Eq{"phonenumbers": *p})
	}
	if w := clean(c.Website); w != nil {
		conds = append(conds, sq.Eq{"website": *w})
	}
	if c.Location != nil {
		conds = append(conds, sq.Eq{"name": c.Name, "lat": c.Location.Lat, "lng": c.Location.Lng})
	}
	if len(conds) == 0 {
		return nil, nil
	}

	found, err := r.queryBusinesses(ctx, q, r.db.Builder().
		Select(columns...).
		From("businesses").
		Where(conds).
		OrderBy("seq").
		Limit(1))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func locationArgs(p *geo.Point) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

func jsonArgs(b *Business) (database.JSON[[]string], database.JSON[[]maps.Review]) {
	hours := database.JSON[[]string]{V: b.OpeningHours, Valid: b.OpeningHours != nil}
	reviews := database.JSON[[]maps.Review]{V: b.Reviews, Valid: b.Reviews != nil}
	return hours, reviews
}

// insert mints a new Biz-<n> id and stores b
func (r *Repository) insert(ctx context.Context, q database.Querier, b *Business) error {
	seq, err := r.db.NextBusinessSeq(ctx, q)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	b.Seq = seq
	b.BusinessID = IDPrefix + strconv.FormatInt(seq, 10)
	b.CreatedAt, b.UpdatedAt = now, now

	lat, lng := locationArgs(b.Location)
	hours, reviews := jsonArgs(b)

	query, args, err := r.db.Builder().
		Insert("businesses").
		Columns(columns...).
		Values(b.BusinessID, b.Seq, b.Name, b.Address, b.Phone, b.Website, b.Category, b.Niche,
			b.Rating, b.ReviewsCount, b.Status, hours, reviews, lat, lng, b.ProfileURL,
			b.CreatedAt, b.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build business insert: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert business: %w", err)
	}
	return nil
}

// update overwrites every mutable column of b
func (r *Repository) update(ctx context.Context, q database.Querier, b *Business) error {
	b.UpdatedAt = time.Now().UTC()
	lat, lng := locationArgs(b.Location)
	hours, reviews := jsonArgs(b)

	query, args, err := r.db.Builder().
		Update("businesses").
		SetMap(map[string]any{
			"name":          b.Name,
			"address":       b.Address,
			"phonenumbers":  b.Phone,
			"website":       b.Website,
			"category":      b.Category,
			"niche":         b.Niche,
			"rating":        b.Rating,
			"reviewscount":  b.ReviewsCount,
			"status":        b.Status,
			"opening_hours": hours,
			"reviews":       reviews,
			"lat":           lat,
			"lng":           lng,
			"profileurl":    b.ProfileURL,
			"updated_at":    b.UpdatedAt,
		}).
		Where(sq.Eq{"businessid": b.BusinessID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build business update: %w", err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update business %s: %w", b.BusinessID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update business %s: %w", b.BusinessID, ErrNotFound)
	}
	return nil
}

// Create stores a manually entered business under the upsert lock
func (r *Repository) Create(ctx context.Context, b *Business) error {
	return r.CreateWith(ctx, b, nil)
}

// CreateWith stores b and then runs then in the same transaction, after b
// has its id
func (r *Repository) CreateWith(ctx context.Context, b *Business, then func(q database.Querier) error) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := r.db.LockBusinessUpsert(ctx, tx); err != nil {
			return err
		}
		if err := r.insert(ctx, tx, b); err != nil {
			return err
		}
		if then == nil {
			return nil
		}
		return then(tx)
	})
}

// Get returns a business by id
func (r *Repository) Get(ctx context.Context, id string) (*Business, error) {
	found, err := r.queryBusinesses(ctx, r.db.DB, r.db.Builder().
		Select(columns...).
		From("businesses").
		Where(sq.Eq{"businessid": id}))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

// ListByIDs returns the businesses with the given ids in the requested order.
// Unknown ids are skipped.
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]Business, error) {
	if len(ids) == 0 {
		return []Business{}, nil
	}

	found, err := r.queryBusinesses(ctx, r.db.DB, r.db.Builder().
		Select(columns...).
		From("businesses").
		Where(sq.Eq{"businessid": ids}))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Business, len(found))
	for _, b := range found {
		byID[b.BusinessID] = b
	}

	out := make([]Business, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok && !seen[id] {
			out = append(out, b)
			seen[id] = true
		}
	}
	return out, nil
}

// ListRankedByIDs returns the businesses ordered by rating (highest first),
// then by id
func (r *Repository) ListRankedByIDs(ctx context.Context, ids []string) ([]Business, error) {
	if len(ids) == 0 {
		return []Business{}, nil
	}

	found, err := r.queryBusinesses(ctx, r.db.DB, r.db.Builder().
		Select(columns...).
		From("businesses").
		Where(sq.Eq{"businessid": ids}).
		OrderBy("rating DESC", "businessid"))
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []Business{}
	}
	return found, nil
}

// UpdateLocation sets the coordinates of a business
func (r *Repository) UpdateLocation(ctx context.Context, id string, p geo.Point) error {
	query, args, err := r.db.Builder().
		Update("businesses").
		Set("lat", p.Lat).
		Set("lng", p.Lng).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"businessid": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build location update: %w", err)
	}

	res, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update location of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
