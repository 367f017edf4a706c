// Package search runs the discovery pipeline: find places around a location,
// reconcile them with stored businesses, record the search, rank competitors
// and assemble the map view.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jordanlanch/leadscope/pkg/audit"
	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/competitor"
	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/mapdata"
	"github.com/jordanlanch/leadscope/pkg/maps"
	"github.com/jordanlanch/leadscope/pkg/metrics"
	"github.com/jordanlanch/leadscope/pkg/phone"
	"github.com/jordanlanch/leadscope/pkg/scrape"
)

// AddBusinessRadius is the discovery radius around a manually added business
const AddBusinessRadius = 8000

var (
	// ErrNoBusinessIDs is returned when reconciliation produced no stored business
	ErrNoBusinessIDs = errors.New("business ids must be a non-empty array")
	// ErrMapDataMissing is returned when the map view cannot be assembled
	ErrMapDataMissing = errors.New("map data is missing")
	// ErrInvalidPhone is returned when a manually entered phone cannot be parsed
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Finder discovers candidate places
type Finder interface {
	Search(ctx context.Context, keyword string, loc maps.Location, radiusMeters int) []maps.Candidate
}

// ScrapeTrigger starts background crawls
type ScrapeTrigger interface {
	Trigger(ctx context.Context, businessID string, website *string) (scrape.Status, bool, error)
}

// Deps are the collaborators of a Service
type Deps struct {
	Finder    Finder
	Locator   maps.Locator
	Upserter  *business.Upserter
	Repo      *business.Repository
	Tracker   *history.Tracker
	Ranker    *competitor.Ranker
	Assembler *mapdata.Assembler
	Scrapes   *scrape.Store
	Trigger   ScrapeTrigger
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Service runs searches and builds business views
type Service struct {
	finder    Finder
	locator   maps.Locator
	upserter  *business.Upserter
	repo      *business.Repository
	tracker   *history.Tracker
	ranker    *competitor.Ranker
	assembler *mapdata.Assembler
	scrapes   *scrape.Store
	trigger   ScrapeTrigger
	logger    logger.Logger
	metrics   *metrics.Metrics
}

// NewService creates a Service
func NewService(d Deps) *Service {
	return &Service{
		finder:    d.Finder,
		locator:   d.Locator,
		upserter:  d.Upserter,
		repo:      d.Repo,
		tracker:   d.Tracker,
		ranker:    d.Ranker,
		assembler: d.Assembler,
		scrapes:   d.Scrapes,
		trigger:   d.Trigger,
		logger:    logger.OrDefault(d.Logger).With("component", "search"),
		metrics:   d.Metrics,
	}
}

// Result is the response of a search
type Result struct {
	Businesses  []business.Business              `json:"businesses"`
	Competitors map[string][]competitor.Snapshot `json:"competitors"`
	MapData     *mapdata.MapData                 `json:"mapData"`
}

// Search discovers businesses matching keyword around location, records them
// in the user's history and returns the user's latest search with competitors
// and map data. It returns nil, nil when the provider found nothing.
func (s *Service) Search(ctx context.Context, userID int, keyword, location string, radius int) (*Result, error) {
	ctx = audit.WithUserID(ctx, userID)
	log := s.logger.With("user_id", userID, "keyword", keyword, "location", location)

	candidates := s.finder.Search(ctx, keyword, maps.Location{Address: location}, radius)
	if len(candidates) == 0 {
		s.metrics.RecordSearch("no_results")
		log.Info("search found no candidates")
		return nil, nil
	}

	ids, err := s.discover(ctx, userID, keyword, location, candidates)
	if err != nil {
		s.metrics.RecordSearch("error")
		return nil, err
	}

	byTarget, err := s.ranker.Rank(ctx, userID)
	if err != nil {
		s.metrics.RecordSearch("error")
		return nil, err
	}
	if byTarget == nil {
		byTarget = map[string][]competitor.Snapshot{}
	}

	mapData := s.assembler.Assemble(ctx, userID, byTarget)
	if mapData == nil {
		s.metrics.RecordSearch("error")
		return nil, ErrMapDataMissing
	}

	latest, err := s.tracker.Latest(ctx, userID)
	if err != nil {
		s.metrics.RecordSearch("error")
		return nil, err
	}
	latestIDs := ids
	if latest != nil {
		latestIDs = latest.BusinessIDs
	}
	businesses, err := s.repo.ListRankedByIDs(ctx, latestIDs)
	if err != nil {
		s.metrics.RecordSearch("error")
		return nil, err
	}

	s.metrics.RecordSearch("success")
	log.Info("search completed", "candidates", len(candidates), "businesses", len(businesses),
		"ranked", len(byTarget))
	return &Result{Businesses: businesses, Competitors: byTarget, MapData: mapData}, nil
}

// discover reconciles candidates and records them as one search
func (s *Service) discover(ctx context.Context, userID int, keyword, location string, candidates []maps.Candidate) ([]string, error) {
	stored, err := s.upserter.Upsert(ctx, candidates, keyword)
	if err != nil {
		return nil, err
	}
	ids := history.IDsFrom(stored)
	if len(ids) == 0 {
		return nil, ErrNoBusinessIDs
	}

	if _, err := s.tracker.RecordSearch(ctx, userID, keyword, location, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DetailsView is the legacy single-business view
type DetailsView struct {
	Details        *business.Business   `json:"details"`
	Competitors    []competitor.Detail  `json:"competitors"`
	MapData        *mapdata.BusinessMap `json:"mapData"`
	Scraped        *scrape.Info         `json:"scraped"`
	ScrapingStatus scrape.Status        `json:"scraping_status"`
}

// Details returns a business with its stored competitors, map and scraped
// data, and starts a website crawl when none has succeeded yet. The returned
// status is the one seen before the crawl was triggered.
func (s *Service) Details(ctx context.Context, userID int, businessID string) (*DetailsView, error) {
	ctx = audit.WithUserID(ctx, userID)

	b, err := s.repo.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	competitors, err := s.ranker.Details(ctx, businessID)
	if err != nil {
		return nil, err
	}

	scraped, err := s.scrapes.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}

	view := &DetailsView{
		Details:        b,
		Competitors:    competitors,
		MapData:        s.assembler.ForBusiness(ctx, businessID),
		Scraped:        scraped,
		ScrapingStatus: scrape.StatusNotStarted,
	}
	if scraped != nil && scraped.Status != "" {
		view.ScrapingStatus = scraped.Status
	}

	if s.trigger != nil && view.ScrapingStatus.Triggerable() {
		// a crawl that cannot start is visible through the status endpoint
		if _, queued, err := s.trigger.Trigger(context.WithoutCancel(ctx), businessID, b.Website); err != nil {
			s.logger.Warn("failed to trigger crawl", "business_id", businessID, "error", err)
		} else if queued {
			s.logger.Info("crawl triggered", "business_id", businessID)
		}
	}
	return view, nil
}

// AddBusinessInput is a business entered by hand
type AddBusinessInput struct {
	Name        string
	Address     string
	Niche       string
	Phone       string
	Website     string
	Category    string
	Emails      []string
	SocialMedia map[string]string
}

// AddBusinessResult summarises an added business
type AddBusinessResult struct {
	Message         string    `json:"message"`
	BusinessID      string    `json:"businessId"`
	TotalBusinesses int       `json:"totalBusinesses"`
	SearchID        int64     `json:"searchId"`
	Coordinates     *geoPoint `json:"coordinates"`
}

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AddBusiness stores a manually entered business with its contact data and
// a history row of its own, then discovers and ranks the businesses around
// it. Failures after the business is stored are logged, not returned.
func (s *Service) AddBusiness(ctx context.Context, userID int, in AddBusinessInput) (*AddBusinessResult, error) {
	ctx = audit.WithUserID(ctx, userID)

	b := &business.Business{
		Name:    strings.TrimSpace(in.Name),
		Address: optional(in.Address),
		Website: optional(in.Website),
		Niche:   optional(in.Niche),
	}
	if in.Category != "" {
		b.Category = optional(in.Category)
	}
	if in.Phone != "" {
		normalized, err := phone.Normalize(in.Phone, phone.DefaultRegion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPhone, err)
		}
		b.Phone = &normalized
	}

	var row *history.Row
	err := s.repo.CreateWith(ctx, b, func(q database.Querier) error {
		if err := s.scrapes.CreateManual(ctx, q, b.BusinessID, scrape.ManualInfo{
			Website:     b.Website,
			Emails:      in.Emails,
			SocialMedia: in.SocialMedia,
		}); err != nil {
			return err
		}

		var err error
		row, err = s.tracker.Insert(ctx, q, userID, in.Niche, in.Address, []string{b.BusinessID})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &AddBusinessResult{
		Message:         "Business and related data inserted successfully",
		BusinessID:      b.BusinessID,
		TotalBusinesses: 1,
		SearchID:        row.SearchID,
	}
	log := s.logger.With("user_id", userID, "business_id", b.BusinessID)

	if point := s.locator.Resolve(ctx, in.Address); point != nil {
		if err := s.repo.UpdateLocation(ctx, b.BusinessID, *point); err != nil {
			log.Error("failed to store business location", "error", err)
		} else {
			result.Coordinates = &geoPoint{Lat: point.Lat, Lng: point.Lng}
		}
	} else {
		log.Warn("failed to geocode added business", "address", in.Address)
	}

	candidates := s.finder.Search(ctx, in.Niche, maps.Location{Address: in.Address}, AddBusinessRadius)
	if len(candidates) == 0 {
		log.Warn("no businesses discovered around added business")
		return result, nil
	}

	ids, err := s.discover(ctx, userID, in.Niche, in.Address, candidates)
	if err != nil {
		log.Error("discovery around added business failed", "error", err)
		return result, nil
	}
	result.TotalBusinesses = len(ids)

	if _, err := s.ranker.Rank(ctx, userID); err != nil {
		log.Error("ranking after added business failed", "error", err)
	}

	log.Info("business added", "discovered", len(ids))
	return result, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
