// Package dashboard lists the businesses a user has collected and tracks the
// outreach sent to them.
package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/scrape"
)

// Follow-up states
const (
	FollowUpPending = "Pending"
	FollowUpDone    = "Done"
)

// FollowUpWindow is how long after an outreach a follow-up is counted down
const FollowUpWindow = 72 * time.Hour

// ErrFollowUpNotFound is returned when a follow-up does not belong to the user
var ErrFollowUpNotFound = errors.New("follow-up not found")

// Filter narrows the dashboard list. Empty strings and nil flags match all.
type Filter struct {
	Niche        string
	Address      string
	Scraped      *bool
	OutreachSent *bool
}

// Entry is one business on the dashboard
type Entry struct {
	BusinessID   string    `json:"businessid"`
	Name         string    `json:"name"`
	Website      *string   `json:"website"`
	Address      *string   `json:"address"`
	Niche        *string   `json:"niche"`
	SearchDate   time.Time `json:"search_date"`
	Scraped      bool      `json:"scraped"`
	OutreachSent bool      `json:"outreach_sent"`
	seq          int64
}

// Outreach is a logged contact with a business
type Outreach struct {
	OutreachID int64     `json:"outreach_id"`
	UserID     int       `json:"user_id"`
	BusinessID string    `json:"business_id"`
	TemplateID *int64    `json:"template_id"`
	Date       time.Time `json:"date"`
	FollowUpID int64     `json:"follow_up_id"`
}

// FollowUp is the follow-up reminder of an outreach
type FollowUp struct {
	FollowUpID   int64     `json:"follow_up_id"`
	BusinessID   string    `json:"businessid"`
	BusinessName string    `json:"business_name"`
	OutreachDate time.Time `json:"outreach_date"`
	TemplateID   *int64    `json:"template_id"`
	Status       string    `json:"follow_up_status"`
}

// OutreachEntry is a contactable business and whether it was contacted
type OutreachEntry struct {
	BusinessID   string     `json:"businessid"`
	Name         string     `json:"name"`
	Address      *string    `json:"address"`
	Niche        *string    `json:"niche"`
	Website      *string    `json:"website"`
	Emails       []string   `json:"email"`
	OutreachDate *time.Time `json:"outreach_date"`
	Status       string     `json:"outreach_status"`
}

// Service serves the dashboard
type Service struct {
	db      *database.Client
	tracker *history.Tracker
	repo    *business.Repository
	scrapes *scrape.Store
	logger  logger.Logger
}

// NewService creates a Service
func NewService(db *database.Client, tracker *history.Tracker, repo *business.Repository, scrapes *scrape.Store, log logger.Logger) *Service {
	return &Service{
		db:      db,
		tracker: tracker,
		repo:    repo,
		scrapes: scrapes,
		logger:  logger.OrDefault(log).With("component", "dashboard"),
	}
}

// ListBusinesses returns every business across the user's searches that
// passes f, ordered by the date it was first found
func (s *Service) ListBusinesses(ctx context.Context, userID int, f Filter) ([]Entry, error) {
	dates, err := s.tracker.EarliestSearchDates(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids, err := s.tracker.UnionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	businesses, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	infos, err := s.scrapes.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	contacted, err := s.contacted(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(businesses))
	for _, b := range businesses {
		e := Entry{
			BusinessID:   b.BusinessID,
			Name:         b.Name,
			Website:      b.Website,
			Address:      b.Address,
			Niche:        b.Niche,
			SearchDate:   dates[b.BusinessID],
			Scraped:      infos[b.BusinessID].Status == scrape.StatusCompleted,
			OutreachSent: !contacted[b.BusinessID].IsZero(),
			seq:          b.Seq,
		}
		if f.matches(e) {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].SearchDate.Equal(entries[j].SearchDate) {
			return entries[i].SearchDate.Before(entries[j].SearchDate)
		}
		return entries[i].seq < entries[j].seq
	})
	return entries, nil
}

func (f Filter) matches(e Entry) bool {
	if f.Niche != "" && !containsFold(e.Niche, f.Niche) {
		return false
	}
	if f.Address != "" && !containsFold(e.Address, f.Address) {
		return false
	}
	if f.Scraped != nil && *f.Scraped != e.Scraped {
		return false
	}
	if f.OutreachSent != nil && *f.OutreachSent != e.OutreachSent {
		return false
	}
	return true
}

func containsFold(v *string, sub string) bool {
	return v != nil && strings.Contains(strings.ToLower(*v), strings.ToLower(sub))
}

// contacted maps business ids to the user's latest outreach date
func (s *Service) contacted(ctx context.Context, userID int, ids []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := s.db.Builder().
		Select("business_id", "date").
		From("outreach_log").
		Where(sq.Eq{"user_id": userID, "business_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build outreach query: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outreach log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			date time.Time
		)
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("failed to scan outreach log: %w", err)
		}
		if date.After(out[id]) {
			out[id] = date
		}
	}
	return out, rows.Err()
}

// RemoveBusinesses takes ids off the user's dashboard by dropping them from
// every search row. The businesses themselves are kept.
func (s *Service) RemoveBusinesses(ctx context.Context, userID int, ids []string) (int, error) {
	changed, err := s.tracker.RemoveBusinesses(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("businesses removed from dashboard", "user_id", userID, "ids", len(ids), "rows", changed)
	return changed, nil
}

// RecordOutreach logs a contact with a business and opens its follow-up
func (s *Service) RecordOutreach(ctx context.Context, userID int, businessID string, templateID *int64) (*Outreach, error) {
	if _, err := s.repo.Get(ctx, businessID); err != nil {
		return nil, err
	}

	o := &Outreach{UserID: userID, BusinessID: businessID, TemplateID: templateID, Date: time.Now().UTC()}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.db.Builder().
			Insert("outreach_log").
			Columns("user_id", "business_id", "template_id", "date").
			Values(o.UserID, o.BusinessID, o.TemplateID, o.Date).
			Suffix("RETURNING outreach_id").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build outreach insert: %w", err)
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&o.OutreachID); err != nil {
			return fmt.Errorf("failed to insert outreach: %w", err)
		}

		query, args, err = s.db.Builder().
			Insert("follow_ups").
			Columns("user_id", "business_id", "outreach_id", "status", "created_at").
			Values(o.UserID, o.BusinessID, o.OutreachID, FollowUpPending, o.Date).
			Suffix("RETURNING follow_up_id").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build follow-up insert: %w", err)
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&o.FollowUpID); err != nil {
			return fmt.Errorf("failed to insert follow-up: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// MarkFollowUpDone closes a follow-up of the user
func (s *Service) MarkFollowUpDone(ctx context.Context, userID int, followUpID int64) error {
	query, args, err := s.db.Builder().
		Update("follow_ups").
		Set("status", FollowUpDone).
		Where(sq.Eq{"follow_up_id": followUpID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build follow-up update: %w", err)
	}

	res, err := s.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update follow-up %d: %w", followUpID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFollowUpNotFound
	}
	return nil
}

// ListFollowUps returns the user's follow-ups, newest outreach first, with
// their status as of now
func (s *Service) ListFollowUps(ctx context.Context, userID int, now time.Time) ([]FollowUp, error) {
	query, args, err := s.db.Builder().
		Select("f.follow_up_id", "b.businessid", "b.name", "o.date", "o.template_id", "f.status").
		From("follow_ups f").
		Join("businesses b ON b.businessid = f.business_id").
		Join("outreach_log o ON o.outreach_id = f.outreach_id").
		Where(sq.Eq{"f.user_id": userID}).
		OrderBy("o.date DESC", "f.follow_up_id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build follow-up query: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query follow-ups: %w", err)
	}
	defer rows.Close()

	out := []FollowUp{}
	for rows.Next() {
		var (
			f      FollowUp
			status string
		)
		if err := rows.Scan(&f.FollowUpID, &f.BusinessID, &f.BusinessName, &f.OutreachDate, &f.TemplateID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan follow-up: %w", err)
		}
		f.Status = FollowUpStatus(now, f.OutreachDate, status == FollowUpDone)
		out = append(out, f)
	}
	return out, rows.Err()
}

// FollowUpStatus is Done for closed follow-ups, the time left while inside
// the follow-up window, and Pending afterwards
func FollowUpStatus(now, outreach time.Time, done bool) string {
	if done {
		return FollowUpDone
	}
	elapsed := now.Sub(outreach)
	if elapsed >= FollowUpWindow {
		return FollowUpPending
	}

	left := FollowUpWindow - elapsed
	days := int(left / (24 * time.Hour))
	hours := int((left % (24 * time.Hour)) / time.Hour)
	return fmt.Sprintf("%d day(s), %d hour(s)", days, hours)
}

// OutreachStatus lists the businesses across the user's searches that have
// scraped emails, with whether the user already contacted them
func (s *Service) OutreachStatus(ctx context.Context, userID int) ([]OutreachEntry, error) {
	ids, err := s.tracker.UnionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	businesses, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	infos, err := s.scrapes.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	contacted, err := s.contacted(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(businesses, func(i, j int) bool { return businesses[i].Seq < businesses[j].Seq })

	out := []OutreachEntry{}
	for _, b := range businesses {
		info, ok := infos[b.BusinessID]
		if !ok || len(info.Emails) == 0 {
			continue
		}
		e := OutreachEntry{
			BusinessID: b.BusinessID,
			Name:       b.Name,
			Address:    b.Address,
			Niche:      b.Niche,
			Website:    b.Website,
			Emails:     info.Emails,
			Status:     FollowUpPending,
		}
		if d, ok := contacted[b.BusinessID]; ok {
			e.OutreachDate = &d
			e.Status = FollowUpDone
		}
		out = append(out, e)
	}
	return out, nil
}
