package business

import (
	"strings"
	"time"

	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/maps"
)

// IDPrefix prefixes every sequence-minted business id
const IDPrefix = "Biz-"

// Business is a stored, reconciled business record
type Business struct {
	BusinessID   string        `json:"businessid"`
	Seq          int64         `json:"-"`
	Name         string        `json:"name"`
	Address      *string       `json:"address"`
	Phone        *string       `json:"phonenumbers"`
	Website      *string       `json:"website"`
	Category     *string       `json:"category"`
	Niche        *string       `json:"niche"`
	Rating       float64       `json:"rating"`
	ReviewsCount int           `json:"reviewscount"`
	Status       *string       `json:"status"`
	OpeningHours []string      `json:"opening_hours"`
	Reviews      []maps.Review `json:"reviews"`
	Location     *geo.Point    `json:"location"`
	ProfileURL   *string       `json:"profileurl"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Identifier returns the business id
func (b Business) Identifier() string {
	return b.BusinessID
}

// FromCandidate builds a new, unsaved business from a provider candidate
func FromCandidate(c maps.Candidate, keyword string) Business {
	niche := c.Niche
	if niche == "" {
		niche = keyword
	}

	return Business{
		Name:         c.Name,
		Address:      optional(c.Address),
		Phone:        clean(c.Phone),
		Website:      clean(c.Website),
		Category:     optional(c.Category),
		Niche:        optional(niche),
		Rating:       c.Rating,
		ReviewsCount: c.ReviewsCount,
		Status:       optional(c.Status),
		OpeningHours: c.OpeningHours,
		Reviews:      c.Reviews,
		Location:     c.Location,
		ProfileURL:   optional(c.ProfileURL),
	}
}

// Matches reports whether a stored business and a candidate describe the same
// place: equal phone numbers, or equal websites, or equal name at the exact
// same coordinates. Absent values never match.
func Matches(existing Business, c maps.Candidate) bool {
	if p := clean(c.Phone); p != nil && existing.Phone != nil && *existing.Phone == *p {
		return true
	}
	if w := clean(c.Website); w != nil && existing.Website != nil && *existing.Website == *w {
		return true
	}
	return existing.Name == c.Name &&
		existing.Location != nil && c.Location != nil &&
		existing.Location.Lat == c.Location.Lat &&
		existing.Location.Lng == c.Location.Lng
}

// Merge folds a candidate into an existing business. Existing values win,
// rating and review count take the maximum, a closed business re-opens when
// the provider reports it open, and niche falls back to the search keyword.
func Merge(existing Business, c maps.Candidate, keyword string) Business {
	merged := existing

	if merged.Name == "" {
		merged.Name = c.Name
	}
	merged.Address = coalesce(existing.Address, optional(c.Address))
	merged.Phone = coalesce(existing.Phone, clean(c.Phone))
	merged.Website = coalesce(existing.Website, clean(c.Website))
	merged.Category = coalesce(existing.Category, optional(c.Category))
	merged.ProfileURL = coalesce(existing.ProfileURL, optional(c.ProfileURL))
	merged.Niche = coalesce(existing.Niche, optional(keyword))
	merged.Status = mergeStatus(existing.Status, c.Status)

	if c.Rating > merged.Rating {
		merged.Rating = c.Rating
	}
	if c.ReviewsCount > merged.ReviewsCount {
		merged.ReviewsCount = c.ReviewsCount
	}
	if merged.Location == nil {
		merged.Location = c.Location
	}
	if merged.OpeningHours == nil {
		merged.OpeningHours = c.OpeningHours
	}
	if merged.Reviews == nil {
		merged.Reviews = c.Reviews
	}

	return merged
}

func mergeStatus(existing *string, incoming string) *string {
	if existing != nil && *existing == maps.StatusClosed && incoming == maps.StatusOpen {
		return optional(maps.StatusOpen)
	}
	return coalesce(existing, optional(incoming))
}

func coalesce(existing, incoming *string) *string {
	if existing != nil {
		return existing
	}
	return incoming
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func clean(v *string) *string {
	if v == nil {
		return nil
	}
	return optional(*v)
}
