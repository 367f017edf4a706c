package maps

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jordanlanch/leadscope/pkg/geo"
)

// detailFields is the field mask requested from the place details endpoint
const detailFields = "name,formatted_address,international_phone_number,website,opening_hours,reviews,geometry,place_id,rating,user_ratings_total,types"

const maxReviews = 3

// Business status values
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Review is a short review excerpt
type Review struct {
	AuthorName string  `json:"author_name"`
	Rating     float64 `json:"rating"`
	Text       string  `json:"text"`
	Time       string  `json:"time"`
}

// Candidate is a business returned by the provider, before reconciliation
type Candidate struct {
	PlaceID      string
	Name         string
	Address      string
	Phone        *string
	Website      *string
	Category     string
	Location     *geo.Point
	Rating       float64
	ReviewsCount int
	Status       string
	Niche        string
	ProfileURL   string
	OpeningHours []string // nil when the provider has no hours
	Reviews      []Review
}

// Location is either a free-text address or resolved coordinates
type Location struct {
	Address string
	Point   *geo.Point
}

type placeSummary struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	BusinessStatus   string   `json:"business_status"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	Geometry         struct {
		Location *geo.Point `json:"location"`
	} `json:"geometry"`
}

type nearbyResponse struct {
	Status  string          `json:"status"`
	Results *[]placeSummary `json:"results"`
}

type placeDetails struct {
	Name                     string   `json:"name"`
	FormattedAddress         string   `json:"formatted_address"`
	InternationalPhoneNumber string   `json:"international_phone_number"`
	Website                  string   `json:"website"`
	BusinessStatus           string   `json:"business_status"`
	Types                    []string `json:"types"`
	Rating                   float64  `json:"rating"`
	UserRatingsTotal         int      `json:"user_ratings_total"`
	Geometry                 struct {
		Location *geo.Point `json:"location"`
	} `json:"geometry"`
	OpeningHours *struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	Reviews []struct {
		AuthorName              string  `json:"author_name"`
		Rating                  float64 `json:"rating"`
		Text                    string  `json:"text"`
		RelativeTimeDescription string  `json:"relative_time_description"`
	} `json:"reviews"`
}

type detailsResponse struct {
	Status string       `json:"status"`
	Result placeDetails `json:"result"`
}

// PlaceFinder finds businesses around a location and enriches them with details
type PlaceFinder struct {
	client      *Client
	locator     Locator
	concurrency int
}

// NewPlaceFinder creates a PlaceFinder. concurrency bounds parallel detail calls.
func NewPlaceFinder(client *Client, locator Locator, concurrency int) *PlaceFinder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &PlaceFinder{client: client, locator: locator, concurrency: concurrency}
}

// Search returns candidates matching keyword within radiusMeters of loc, in
// the provider's order. Provider failures yield an empty list.
func (f *PlaceFinder) Search(ctx context.Context, keyword string, loc Location, radiusMeters int) []Candidate {
	log := f.client.logger.With("keyword", keyword)

	point := loc.Point
	if point == nil {
		point = f.locator.Resolve(ctx, loc.Address)
		if point == nil {
			log.Warn("location could not be resolved", "address", loc.Address)
			return []Candidate{}
		}
	}

	var nearby nearbyResponse
	params := url.Values{
		"keyword":  {keyword},
		"location": {point.String()},
		"radius":   {strconv.Itoa(radiusMeters)},
	}
	if err := f.client.getJSON(ctx, APINearbySearch, "/place/nearbysearch/json", params, &nearby); err != nil {
		log.Error("nearby search failed", "error", err)
		return []Candidate{}
	}
	if nearby.Results == nil {
		log.Warn("nearby search returned no results field", "status", nearby.Status)
		return []Candidate{}
	}

	places := *nearby.Results
	details := make([]placeDetails, len(places))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, place := range places {
		g.Go(func() error {
			var resp detailsResponse
			params := url.Values{
				"place_id": {place.PlaceID},
				"fields":   {detailFields},
			}
			if err := f.client.getJSON(gCtx, APIPlaceDetails, "/place/details/json", params, &resp); err != nil {
				// a failed detail call degrades to the summary fields only
				log.Warn("place details failed", "place_id", place.PlaceID, "error", err)
				return nil
			}
			details[i] = resp.Result
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Candidate, 0, len(places))
	for i, place := range places {
		candidates = append(candidates, buildCandidate(place, details[i], keyword))
	}

	log.Info("nearby search finished", "candidates", len(candidates))
	return candidates
}

// buildCandidate takes rating, review count, category and location from the
// nearby summary; details only fill what the summary lacks
func buildCandidate(place placeSummary, d placeDetails, keyword string) Candidate {
	c := Candidate{
		PlaceID:      place.PlaceID,
		Name:         firstNonEmpty(d.Name, place.Name),
		Address:      firstNonEmpty(d.FormattedAddress, place.Vicinity, "Unknown"),
		Phone:        optional(d.InternationalPhoneNumber),
		Website:      optional(d.Website),
		Category:     "Unknown",
		Rating:       place.Rating,
		ReviewsCount: place.UserRatingsTotal,
		Status:       StatusClosed,
		Niche:        keyword,
		ProfileURL:   "https://www.google.com/maps/place/?q=place_id:" + place.PlaceID,
	}

	if c.Rating == 0 {
		c.Rating = d.Rating
	}
	if c.ReviewsCount == 0 {
		c.ReviewsCount = d.UserRatingsTotal
	}

	if len(place.Types) > 0 {
		c.Category = place.Types[0]
	} else if len(d.Types) > 0 {
		c.Category = d.Types[0]
	}

	c.Location = place.Geometry.Location
	if c.Location == nil {
		c.Location = d.Geometry.Location
	}

	if firstNonEmpty(d.BusinessStatus, place.BusinessStatus) == "OPERATIONAL" {
		c.Status = StatusOpen
	}

	if d.OpeningHours != nil && d.OpeningHours.WeekdayText != nil {
		c.OpeningHours = d.OpeningHours.WeekdayText
	}

	for _, r := range d.Reviews {
		if len(c.Reviews) == maxReviews {
			break
		}
		c.Reviews = append(c.Reviews, Review{
			AuthorName: r.AuthorName,
			Rating:     r.Rating,
			Text:       r.Text,
			Time:       r.RelativeTimeDescription,
		})
	}

	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
