package business

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadscope/pkg/database/dbtest"
	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/maps"
	"github.com/jordanlanch/leadscope/pkg/metrics"
	"github.com/jordanlanch/leadscope/pkg/testdata"
)

func setup(t *testing.T) (*Repository, *Upserter, *metrics.Metrics) {
	t.Helper()
	db := dbtest.Open(t)
	repo := NewRepository(db)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return repo, NewUpserter(db, repo, logger.Nop(), m), m
}

func TestUpserter_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - new candidates get sequential ids", func(t *testing.T) {
		repo, u, m := setup(t)

		got, err := u.Upsert(ctx, []maps.Candidate{
			{Name: "Cafe A", Phone: strPtr("+1 111"), Rating: 4.1},
			{Name: "Cafe B", Phone: strPtr("+1 222"), Rating: 4.6},
		}, "cafe")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Biz-1", got[0].BusinessID)
		assert.Equal(t, "Biz-2", got[1].BusinessID)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.BusinessesUpserted.WithLabelValues("inserted")))

		stored, err := repo.Get(ctx, "Biz-2")
		require.NoError(t, err)
		assert.Equal(t, "Cafe B", stored.Name)
		assert.Equal(t, "cafe", *stored.Niche)
	})

	t.Run("Success - equal phone merges into one row", func(t *testing.T) {
		repo, u, _ := setup(t)

		_, err := u.Upsert(ctx, []maps.Candidate{
			{Name: "Cafe A", Phone: strPtr("+1 111"), Rating: 4.1, ReviewsCount: 40},
		}, "cafe")
		require.NoError(t, err)

		got, err := u.Upsert(ctx, []maps.Candidate{
			{Name: "Cafe A (new)", Phone: strPtr("+1 111"), Rating: 4.7, ReviewsCount: 12, Website: strPtr("https://a.example")},
		}, "cafe")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Biz-1", got[0].BusinessID)

		stored, err := repo.Get(ctx, "Biz-1")
		require.NoError(t, err)
		assert.Equal(t, "Cafe A", stored.Name)
		assert.Equal(t, 4.7, stored.Rating)
		assert.Equal(t, 40, stored.ReviewsCount)
		require.NotNil(t, stored.Website)
		assert.Equal(t, "https://a.example", *stored.Website)

		_, err = repo.Get(ctx, "Biz-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Success - name and location match without phone or website", func(t *testing.T) {
		_, u, _ := setup(t)
		loc := geo.Point{Lat: 40.7306, Lng: -73.9866}

		first, err := u.Upsert(ctx, []maps.Candidate{{Name: "Joe's Pizza", Location: &loc}}, "pizza")
		require.NoError(t, err)

		again := loc
		second, err := u.Upsert(ctx, []maps.Candidate{{Name: "Joe's Pizza", Location: &again, Rating: 4.5}}, "pizza")
		require.NoError(t, err)

		assert.Equal(t, first[0].BusinessID, second[0].BusinessID)
		assert.Equal(t, 4.5, second[0].Rating)
	})

	t.Run("Success - duplicates within one batch collapse", func(t *testing.T) {
		_, u, m := setup(t)

		got, err := u.Upsert(ctx, []maps.Candidate{
			{Name: "Dup", Website: strPtr("https://dup.example"), Rating: 3},
			{Name: "Dup again", Website: strPtr("https://dup.example"), Rating: 5},
		}, "cafe")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, got[0].BusinessID, got[1].BusinessID)
		assert.Equal(t, 5.0, got[1].Rating)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.BusinessesUpserted.WithLabelValues("merged")))
	})

	t.Run("Success - generated batch round trips", func(t *testing.T) {
		repo, u, _ := setup(t)
		candidates := testdata.GenerateCandidatesFor("cafe", "Boston, MA", 8)

		got, err := u.Upsert(ctx, candidates, "cafe")
		require.NoError(t, err)
		require.NotEmpty(t, got)

		ids := make([]string, len(got))
		for i, b := range got {
			ids[i] = b.BusinessID
		}
		stored, err := repo.ListByIDs(ctx, ids)
		require.NoError(t, err)
		assert.NotEmpty(t, stored)
		for _, b := range stored {
			assert.NotNil(t, b.Location)
			assert.NotEmpty(t, b.OpeningHours)
		}
	})

	t.Run("Success - empty input", func(t *testing.T) {
		_, u, _ := setup(t)
		got, err := u.Upsert(ctx, nil, "cafe")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRepository(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*Repository, []Business) {
		repo, u, _ := setup(t)
		got, err := u.Upsert(ctx, []maps.Candidate{
			{Name: "Low", Phone: strPtr("1"), Rating: 3.1, Location: &geo.Point{Lat: 1, Lng: 1}},
			{Name: "High", Phone: strPtr("2"), Rating: 4.9},
			{Name: "Mid", Phone: strPtr("3"), Rating: 4.0},
		}, "cafe")
		require.NoError(t, err)
		return repo, got
	}

	t.Run("Success - ListByIDs keeps requested order", func(t *testing.T) {
		repo, _ := seed(t)
		got, err := repo.ListByIDs(ctx, []string{"Biz-3", "Biz-1", "Biz-9", "Biz-3"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Biz-3", got[0].BusinessID)
		assert.Equal(t, "Biz-1", got[1].BusinessID)
	})

	t.Run("Success - ListRankedByIDs orders by rating", func(t *testing.T) {
		repo, _ := seed(t)
		got, err := repo.ListRankedByIDs(ctx, []string{"Biz-1", "Biz-2", "Biz-3"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"High", "Mid", "Low"}, []string{got[0].Name, got[1].Name, got[2].Name})
	})

	t.Run("Success - empty id lists", func(t *testing.T) {
		repo, _ := seed(t)
		got, err := repo.ListByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		got, err = repo.ListRankedByIDs(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Success - UpdateLocation", func(t *testing.T) {
		repo, _ := seed(t)
		require.NoError(t, repo.UpdateLocation(ctx, "Biz-2", geo.Point{Lat: 42.1, Lng: -71.2}))

		b, err := repo.Get(ctx, "Biz-2")
		require.NoError(t, err)
		require.NotNil(t, b.Location)
		assert.Equal(t, 42.1, b.Location.Lat)
	})

	t.Run("Error - UpdateLocation unknown id", func(t *testing.T) {
		repo, _ := seed(t)
		err := repo.UpdateLocation(ctx, "Biz-404", geo.Point{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Success - Create mints the next id", func(t *testing.T) {
		repo, _ := seed(t)
		b := &Business{Name: "Manual", Phone: strPtr("+1 444")}
		require.NoError(t, repo.Create(ctx, b))
		assert.Equal(t, "Biz-4", b.BusinessID)
		assert.False(t, b.CreatedAt.IsZero())
	})

	t.Run("Error - Get unknown id", func(t *testing.T) {
		repo, _ := seed(t)
		_, err := repo.Get(ctx, "Biz-404")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
