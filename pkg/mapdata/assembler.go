// Package mapdata builds the map views shown next to search results.
package mapdata

import (
	"context"
	"fmt"

	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/competitor"
	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/logger"
)

// UnknownDistance is shown when a competitor has no distance
const UnknownDistance = "Unknown"

// MapData is the map view of the user's latest search
type MapData struct {
	Businesses []MapBusiness `json:"businesses"`
}

// MapBusiness is one pin on the map with its competitors
type MapBusiness struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Location    *geo.Point      `json:"location"`
	Competitors []MapCompetitor `json:"competitors"`
}

// MapCompetitor is a competitor pin with a display distance
type MapCompetitor struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
	Distance string    `json:"distance"`
}

// BusinessMap is the map view of a single business
type BusinessMap struct {
	Business    BusinessPin     `json:"business"`
	Competitors []CompetitorPin `json:"competitors"`
}

// BusinessPin locates a business
type BusinessPin struct {
	Name     string     `json:"name"`
	Location *geo.Point `json:"location"`
}

// CompetitorPin locates a competitor with its distance in km
type CompetitorPin struct {
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
	Distance float64   `json:"distance"`
}

// Assembler builds map views. It never fails: lookup errors are logged and
// produce no map.
type Assembler struct {
	history *history.Tracker
	repo    *business.Repository
	store   *competitor.Store
	logger  logger.Logger
}

// NewAssembler creates an Assembler
func NewAssembler(tracker *history.Tracker, repo *business.Repository, store *competitor.Store, log logger.Logger) *Assembler {
	return &Assembler{
		history: tracker,
		repo:    repo,
		store:   store,
		logger:  logger.OrDefault(log).With("component", "mapdata"),
	}
}

// Assemble returns the businesses of the user's latest search with their
// competitors from byTarget. It returns nil when the user has no search
// history or the latest search holds no businesses.
func (a *Assembler) Assemble(ctx context.Context, userID int, byTarget map[string][]competitor.Snapshot) *MapData {
	latest, err := a.history.Latest(ctx, userID)
	if err != nil {
		a.logger.Error("failed to load latest search", "user_id", userID, "error", err)
		return nil
	}
	if latest == nil || len(latest.BusinessIDs) == 0 {
		return nil
	}

	businesses, err := a.repo.ListByIDs(ctx, latest.BusinessIDs)
	if err != nil {
		a.logger.Error("failed to load map businesses", "user_id", userID, "error", err)
		return nil
	}
	if len(businesses) == 0 {
		return nil
	}

	data := &MapData{Businesses: make([]MapBusiness, 0, len(businesses))}
	for _, b := range businesses {
		pins := make([]MapCompetitor, 0, len(byTarget[b.BusinessID]))
		for _, s := range byTarget[b.BusinessID] {
			pins = append(pins, MapCompetitor{
				ID:       s.BusinessID,
				Name:     s.Name,
				Location: s.Location,
				Distance: FormatDistance(s.DistanceKM),
			})
		}
		data.Businesses = append(data.Businesses, MapBusiness{
			ID:          b.BusinessID,
			Name:        b.Name,
			Location:    b.Location,
			Competitors: pins,
		})
	}
	return data
}

// ForBusiness returns the map of one business and its stored competitors, or
// nil when the business is unknown or has no competitors row
func (a *Assembler) ForBusiness(ctx context.Context, businessID string) *BusinessMap {
	b, err := a.repo.Get(ctx, businessID)
	if err != nil {
		a.logger.Debug("no business for map", "businessid", businessID, "error", err)
		return nil
	}

	snaps, found, err := a.store.Get(ctx, businessID)
	if err != nil {
		a.logger.Error("failed to load competitors for map", "businessid", businessID, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	pins := make([]CompetitorPin, 0, len(snaps))
	for _, s := range snaps {
		pins = append(pins, CompetitorPin{Name: s.Name, Location: s.Location, Distance: s.DistanceKM})
	}
	return &BusinessMap{
		Business:    BusinessPin{Name: b.Name, Location: b.Location},
		Competitors: pins,
	}
}

// FormatDistance renders a distance in km for display
func FormatDistance(km float64) string {
	if km <= 0 {
		return UnknownDistance
	}
	return fmt.Sprintf("%.2f km", km)
}
