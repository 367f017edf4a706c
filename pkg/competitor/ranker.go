// Package competitor finds the nearest peers of every business a user has
// searched for.
package competitor

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/metrics"
)

// Ranker computes and stores the three nearest competitors of each business
// in a user's search history. Every pair is compared, so cost grows with the
// square of the history size.
type Ranker struct {
	db      *database.Client
	history *history.Tracker
	repo    *business.Repository
	store   *Store
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewRanker creates a Ranker
func NewRanker(db *database.Client, tracker *history.Tracker, repo *business.Repository, store *Store, log logger.Logger, m *metrics.Metrics) *Ranker {
	return &Ranker{
		db:      db,
		history: tracker,
		repo:    repo,
		store:   store,
		logger:  logger.OrDefault(log).With("component", "competitor_ranker"),
		metrics: m,
	}
}

type located struct {
	business.Business
	planar geo.Planar
}

// Rank ranks every business across all of the user's searches against the
// others and overwrites their stored competitors. Businesses without
// coordinates take no part. Targets with no peers are left out of the result
// and lose any competitors stored by an earlier run.
func (r *Ranker) Rank(ctx context.Context, userID int) (map[string][]Snapshot, error) {
	ids, err := r.history.UnionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	businesses, err := r.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	set := make([]located, 0, len(businesses))
	for _, b := range businesses {
		if b.Location == nil {
			continue
		}
		set = append(set, located{Business: b, planar: geo.Mercator(*b.Location)})
	}

	ranked := make(map[string][]Snapshot, len(set))
	for _, target := range set {
		if snaps := nearest(target, set); len(snaps) > 0 {
			ranked[target.BusinessID] = snaps
		}
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, target := range set {
			snaps, ok := ranked[target.BusinessID]
			if !ok {
				if err := r.store.Delete(ctx, tx, target.BusinessID); err != nil {
					return err
				}
				continue
			}
			if err := r.store.Save(ctx, tx, target.BusinessID, snaps); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist competitors: %w", err)
	}

	r.metrics.RecordCompetitorsRanked(len(ranked))
	r.logger.Info("competitors ranked", "user_id", userID, "businesses", len(set), "targets", len(ranked))
	return ranked, nil
}

// nearest returns up to MaxCompetitors peers of target ordered by distance.
// Ties keep the order of set.
func nearest(target located, set []located) []Snapshot {
	snaps := make([]Snapshot, 0, len(set))
	for _, other := range set {
		if other.BusinessID == target.BusinessID {
			continue
		}
		d := geo.PlanarDistance(target.planar, other.planar)
		snaps = append(snaps, Snapshot{
			BusinessID: other.BusinessID,
			Name:       other.Name,
			Location:   *other.Location,
			DistanceM:  d,
			DistanceKM: d / 1000,
		})
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].DistanceM < snaps[j].DistanceM
	})
	if len(snaps) > MaxCompetitors {
		snaps = snaps[:MaxCompetitors]
	}
	return snaps
}
