// Package testdata generates realistic fake provider candidates for tests and
// local seeding.
package testdata

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/maps"
)

// CandidateConfig configures candidate generation
type CandidateConfig struct {
	Keyword       string
	Count         int
	Near          geo.Point
	SpreadMeters  float64 // max offset from Near on each axis
	PhoneChance   float64 // 0.0-1.0
	WebsiteChance float64
	ClosedChance  float64
}

// Cities maps a few search locations to their centers
var Cities = map[string]geo.Point{
	"Boston, MA":        {Lat: 42.3601, Lng: -71.0589},
	"New York, NY":      {Lat: 40.7128, Lng: -74.0060},
	"Chicago, IL":       {Lat: 41.8781, Lng: -87.6298},
	"Austin, TX":        {Lat: 30.2672, Lng: -97.7431},
	"San Francisco, CA": {Lat: 37.7749, Lng: -122.4194},
}

// Niche-specific business name prefixes and suffixes
var businessNameParts = map[string]struct {
	Prefixes []string
	Suffixes []string
}{
	"cafe": {
		Prefixes: []string{"Cozy", "Corner", "Daily", "Morning", "Central", "Urban", "Local", "Artisan", "Vintage", "Modern"},
		Suffixes: []string{"Cafe", "Coffee Shop", "Coffee House", "Coffee Bar", "Coffee & Tea"},
	},
	"restaurant": {
		Prefixes: []string{"The", "Golden", "Silver", "Blue", "Red", "Green", "Royal", "Grand", "Casa", "Villa"},
		Suffixes: []string{"Restaurant", "Bistro", "Dining", "Kitchen", "Grill", "Eatery", "Table"},
	},
	"pizza": {
		Prefixes: []string{"Joe's", "Tony's", "Mama's", "Brick Oven", "Slice", "Napoli", "Uptown", "Corner", "Little Italy", "Fire"},
		Suffixes: []string{"Pizza", "Pizzeria", "Pizza Co", "Pizza Kitchen", "Pies"},
	},
	"dentist": {
		Prefixes: []string{"Bright", "Perfect", "Family", "Advanced", "Modern", "Premier", "Complete", "Gentle", "Elite", "Professional"},
		Suffixes: []string{"Dental", "Dentistry", "Dental Care", "Dental Clinic", "Dental Studio"},
	},
	"plumber": {
		Prefixes: []string{"Reliable", "Rapid", "Ace", "City", "Pro", "Trusty", "Express", "Master", "Precision", "Allied"},
		Suffixes: []string{"Plumbing", "Plumbers", "Plumbing & Heating", "Drain Services", "Pipe Works"},
	},
	"gym": {
		Prefixes: []string{"Iron", "Peak", "Elite", "Power", "Alpha", "Titan", "Prime", "Force", "Ultimate", "Victory"},
		Suffixes: []string{"Fitness", "Gym", "Performance", "Training Center", "Athletic Club"},
	},
	"barber": {
		Prefixes: []string{"Classic", "Gentleman's", "Royal", "Premium", "Master", "Modern", "Traditional", "Old School", "Sharp"},
		Suffixes: []string{"Barber Shop", "Barbers", "Barbershop", "Grooming", "Cuts"},
	},
}

// GenerateBusinessName creates niche-specific realistic business names
func GenerateBusinessName(keyword string) string {
	parts, ok := businessNameParts[strings.ToLower(keyword)]
	if !ok {
		return fmt.Sprintf("%s %s", gofakeit.Company(), gofakeit.BuzzWord())
	}

	prefix := parts.Prefixes[rand.Intn(len(parts.Prefixes))]
	suffix := parts.Suffixes[rand.Intn(len(parts.Suffixes))]
	return fmt.Sprintf("%s %s", prefix, suffix)
}

// GenerateCandidate creates a single candidate with realistic data
func GenerateCandidate(cfg CandidateConfig) maps.Candidate {
	name := GenerateBusinessName(cfg.Keyword)
	placeID := "ChIJ" + gofakeit.LetterN(23)

	location := offset(cfg.Near, cfg.SpreadMeters)

	c := maps.Candidate{
		PlaceID:      placeID,
		Name:         name,
		Address:      fmt.Sprintf("%s, %s, %s %s", gofakeit.Street(), gofakeit.City(), gofakeit.StateAbr(), gofakeit.Zip()),
		Category:     strings.ToLower(cfg.Keyword),
		Location:     &location,
		Rating:       float64(gofakeit.Number(10, 50)) / 10,
		ReviewsCount: gofakeit.Number(0, 2500),
		Status:       maps.StatusOpen,
		Niche:        cfg.Keyword,
		ProfileURL:   "https://www.google.com/maps/place/?q=place_id:" + placeID,
		OpeningHours: []string{
			"Monday: 8:00 AM – 6:00 PM",
			"Tuesday: 8:00 AM – 6:00 PM",
			"Wednesday: 8:00 AM – 6:00 PM",
			"Thursday: 8:00 AM – 6:00 PM",
			"Friday: 8:00 AM – 8:00 PM",
			"Saturday: 9:00 AM – 8:00 PM",
			"Sunday: Closed",
		},
	}

	if rand.Float64() < cfg.PhoneChance {
		phone := gofakeit.Phone()
		c.Phone = &phone
	}
	if rand.Float64() < cfg.WebsiteChance {
		domain := strings.ToLower(strings.NewReplacer(" ", "", "'", "", "&", "").Replace(name))
		if len(domain) > 20 {
			domain = domain[:20]
		}
		website := fmt.Sprintf("https://www.%s.com", domain)
		c.Website = &website
	}
	if rand.Float64() < cfg.ClosedChance {
		c.Status = maps.StatusClosed
	}

	for i := 0; i < rand.Intn(4); i++ {
		c.Reviews = append(c.Reviews, maps.Review{
			AuthorName: gofakeit.Name(),
			Rating:     float64(gofakeit.Number(1, 5)),
			Text:       gofakeit.Sentence(12),
			Time:       fmt.Sprintf("%d weeks ago", gofakeit.Number(1, 40)),
		})
	}

	return c
}

// GenerateCandidates creates cfg.Count candidates
func GenerateCandidates(cfg CandidateConfig) []maps.Candidate {
	out := make([]maps.Candidate, cfg.Count)
	for i := range out {
		out[i] = GenerateCandidate(cfg)
	}
	return out
}

// GenerateCandidatesFor generates candidates around a named city with default
// completeness settings
func GenerateCandidatesFor(keyword, city string, count int) []maps.Candidate {
	center, ok := Cities[city]
	if !ok {
		center = pickRandomCity()
	}

	return GenerateCandidates(CandidateConfig{
		Keyword:       keyword,
		Count:         count,
		Near:          center,
		SpreadMeters:  3000,
		PhoneChance:   0.8,
		WebsiteChance: 0.6,
		ClosedChance:  0.1,
	})
}

func pickRandomCity() geo.Point {
	names := make([]string, 0, len(Cities))
	for name := range Cities {
		names = append(names, name)
	}
	return Cities[names[rand.Intn(len(names))]]
}

// offset moves p by up to spread meters on each axis
func offset(p geo.Point, spread float64) geo.Point {
	if spread <= 0 {
		return p
	}
	const metersPerDegree = 111320.0
	dLat := (rand.Float64()*2 - 1) * spread / metersPerDegree
	dLng := (rand.Float64()*2 - 1) * spread / metersPerDegree
	return geo.Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}
