package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/database/dbtest"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/scrape"
)

type fixture struct {
	db      *database.Client
	svc     *Service
	repo    *business.Repository
	tracker *history.Tracker
	scrapes *scrape.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	repo := business.NewRepository(db)
	tracker := history.NewTracker(db, logger.Nop())
	scrapes := scrape.NewStore(db)
	return &fixture{
		db:      db,
		svc:     NewService(db, tracker, repo, scrapes, logger.Nop()),
		repo:    repo,
		tracker: tracker,
		scrapes: scrapes,
	}
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func (f *fixture) business(t *testing.T, name, address, niche string) string {
	t.Helper()
	b := &business.Business{Name: name, Address: strPtr(address), Niche: strPtr(niche), Website: strPtr("https://" + name + ".example")}
	require.NoError(t, f.repo.Create(context.Background(), b))
	return b.BusinessID
}

func (f *fixture) search(t *testing.T, userID int, date time.Time, ids ...string) {
	t.Helper()
	ctx := context.Background()
	row, err := f.tracker.Insert(ctx, f.db.DB, userID, "cafe", "Boston, MA", ids)
	require.NoError(t, err)

	query, args, err := f.db.Builder().
		Update("user_searched_businesses").
		Set("search_date", date.UTC()).
		Where("search_id = ?", row.SearchID).
		ToSql()
	require.NoError(t, err)
	_, err = f.db.DB.ExecContext(ctx, query, args...)
	require.NoError(t, err)
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.BusinessID)
	}
	return out
}

func TestService_ListBusinesses(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	f := setup(t)
	b1 := f.business(t, "Bean", "1 Main St, Boston", "Coffee Shop")
	b2 := f.business(t, "Brew", "2 Elm St, Cambridge", "Coffee Shop")
	b3 := f.business(t, "Crumb", "3 Oak St, Boston", "Bakery")
	other := f.business(t, "Elsewhere", "9 Pine St, Boston", "Bakery")

	f.search(t, 1, day, b2)
	f.search(t, 1, day.Add(time.Hour), b1, b3, b2)
	f.search(t, 2, day, other)

	require.NoError(t, f.scrapes.SetStatus(ctx, b3, scrape.StatusCompleted))
	require.NoError(t, f.scrapes.SetStatus(ctx, b1, scrape.StatusFailed))
	_, err := f.svc.RecordOutreach(ctx, 1, b1, nil)
	require.NoError(t, err)
	_, err = f.svc.RecordOutreach(ctx, 2, b3, nil)
	require.NoError(t, err)

	t.Run("Success - union ordered by first search date", func(t *testing.T) {
		entries, err := f.svc.ListBusinesses(ctx, 1, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{b2, b1, b3}, ids(entries))
		assert.True(t, entries[0].SearchDate.Equal(day))
		assert.True(t, entries[1].SearchDate.Equal(day.Add(time.Hour)))

		assert.False(t, entries[1].Scraped)
		assert.True(t, entries[1].OutreachSent)
		assert.True(t, entries[2].Scraped)
		assert.False(t, entries[2].OutreachSent, "outreach of another user")
	})

	t.Run("Success - filters", func(t *testing.T) {
		entries, err := f.svc.ListBusinesses(ctx, 1, Filter{Niche: "coffee"})
		require.NoError(t, err)
		assert.Equal(t, []string{b2, b1}, ids(entries))

		entries, err = f.svc.ListBusinesses(ctx, 1, Filter{Address: "BOSTON"})
		require.NoError(t, err)
		assert.Equal(t, []string{b1, b3}, ids(entries))

		entries, err = f.svc.ListBusinesses(ctx, 1, Filter{Scraped: boolPtr(true)})
		require.NoError(t, err)
		assert.Equal(t, []string{b3}, ids(entries))

		entries, err = f.svc.ListBusinesses(ctx, 1, Filter{OutreachSent: boolPtr(false), Niche: "coffee"})
		require.NoError(t, err)
		assert.Equal(t, []string{b2}, ids(entries))
	})

	t.Run("Success - user without searches", func(t *testing.T) {
		entries, err := f.svc.ListBusinesses(ctx, 99, Filter{})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestService_RemoveBusinesses(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	b1 := f.business(t, "Bean", "1 Main St", "Coffee Shop")
	b2 := f.business(t, "Brew", "2 Elm St", "Coffee Shop")

	f.search(t, 1, time.Now(), b1, b2)
	f.search(t, 1, time.Now(), b2)
	f.search(t, 2, time.Now(), b2)

	changed, err := f.svc.RemoveBusinesses(ctx, 1, []string{b2})
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	entries, err := f.svc.ListBusinesses(ctx, 1, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b1}, ids(entries))

	entries, err = f.svc.ListBusinesses(ctx, 2, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b2}, ids(entries), "other users keep their rows")

	_, err = f.repo.Get(ctx, b2)
	assert.NoError(t, err, "business itself is kept")
}

func TestService_Outreach(t *testing.T) {
	ctx := context.Background()

	t.Run("Error - unknown business", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.RecordOutreach(ctx, 1, "Biz-404", nil)
		assert.ErrorIs(t, err, business.ErrNotFound)
	})

	t.Run("Success - follow-up lifecycle", func(t *testing.T) {
		f := setup(t)
		b1 := f.business(t, "Bean", "1 Main St", "Coffee Shop")

		template := int64(7)
		o, err := f.svc.RecordOutreach(ctx, 1, b1, &template)
		require.NoError(t, err)
		assert.NotZero(t, o.OutreachID)
		assert.NotZero(t, o.FollowUpID)

		followUps, err := f.svc.ListFollowUps(ctx, 1, o.Date.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, followUps, 1)
		assert.Equal(t, b1, followUps[0].BusinessID)
		assert.Equal(t, "Bean", followUps[0].BusinessName)
		assert.Equal(t, "2 day(s), 23 hour(s)", followUps[0].Status)
		require.NotNil(t, followUps[0].TemplateID)
		assert.Equal(t, template, *followUps[0].TemplateID)

		followUps, err = f.svc.ListFollowUps(ctx, 1, o.Date.Add(80*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, FollowUpPending, followUps[0].Status)

		assert.ErrorIs(t, f.svc.MarkFollowUpDone(ctx, 2, o.FollowUpID), ErrFollowUpNotFound)
		require.NoError(t, f.svc.MarkFollowUpDone(ctx, 1, o.FollowUpID))

		followUps, err = f.svc.ListFollowUps(ctx, 1, o.Date)
		require.NoError(t, err)
		assert.Equal(t, FollowUpDone, followUps[0].Status)

		followUps, err = f.svc.ListFollowUps(ctx, 2, o.Date)
		require.NoError(t, err)
		assert.Empty(t, followUps)
	})

	t.Run("Success - outreach status", func(t *testing.T) {
		f := setup(t)
		b1 := f.business(t, "Bean", "1 Main St", "Coffee Shop")
		b2 := f.business(t, "Brew", "2 Elm St", "Coffee Shop")
		b3 := f.business(t, "Crumb", "3 Oak St", "Bakery")
		f.search(t, 1, time.Now(), b3, b2, b1)

		for _, id := range []string{b1, b3} {
			require.NoError(t, f.scrapes.CreateManual(ctx, f.db.DB, id, scrape.ManualInfo{Emails: []string{"hi@" + id + ".example"}}))
		}
		require.NoError(t, f.scrapes.CreateManual(ctx, f.db.DB, b2, scrape.ManualInfo{}))

		_, err := f.svc.RecordOutreach(ctx, 1, b3, nil)
		require.NoError(t, err)

		entries, err := f.svc.OutreachStatus(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, b1, entries[0].BusinessID)
		assert.Equal(t, FollowUpPending, entries[0].Status)
		assert.Nil(t, entries[0].OutreachDate)

		assert.Equal(t, b3, entries[1].BusinessID)
		assert.Equal(t, FollowUpDone, entries[1].Status)
		assert.NotNil(t, entries[1].OutreachDate)
		assert.Equal(t, []string{"hi@" + b3 + ".example"}, entries[1].Emails)
	})
}

func TestFollowUpStatus(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		done bool
		want string
	}{
		{name: "just sent", now: sent, want: "3 day(s), 0 hour(s)"},
		{name: "a day and a half later", now: sent.Add(36 * time.Hour), want: "1 day(s), 12 hour(s)"},
		{name: "last hour", now: sent.Add(71*time.Hour + 30*time.Minute), want: "0 day(s), 0 hour(s)"},
		{name: "window over", now: sent.Add(72 * time.Hour), want: FollowUpPending},
		{name: "done", now: sent.Add(time.Hour), done: true, want: FollowUpDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FollowUpStatus(tt.now, sent, tt.done))
		})
	}
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	b1 := f.business(t, "Bean", "1 Main St, Boston", "Coffee Shop")
	b2 := f.business(t, "Crumb", "3 Oak St, Boston", "Bakery")
	f.search(t, 1, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), b1, b2)
	require.NoError(t, f.scrapes.SetStatus(ctx, b2, scrape.StatusCompleted))

	t.Run("Success - csv", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := f.svc.Export(ctx, &buf, 1, Filter{}, FormatCSV)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, exportHeaders, records[0])
		assert.Equal(t, []string{b1, "Bean", "https://Bean.example", "1 Main St, Boston", "Coffee Shop",
			"2024-03-01T12:00:00Z", "no", "no"}, records[1])
		assert.Equal(t, "yes", records[2][6])
	})

	t.Run("Success - xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := f.svc.Export(ctx, &buf, 1, Filter{Niche: "bakery"}, FormatXLSX)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		book, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer book.Close()

		rows, err := book.GetRows("Businesses")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Business ID", rows[0][0])
		assert.Equal(t, b2, rows[1][0])
	})

	t.Run("Error - unsupported format", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := f.svc.Export(ctx, &buf, 1, Filter{}, "pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.Zero(t, buf.Len())
	})
}
