package maps

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/jordanlanch/leadscope/pkg/cache"
	"github.com/jordanlanch/leadscope/pkg/geo"
	"github.com/jordanlanch/leadscope/pkg/metrics"
)

// Cache stores geocoding results between requests. GetJSON must return
// cache.ErrMiss for absent keys.
type Cache interface {
	GetJSON(ctx context.Context, key string, v any) error
	SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error
}

// Locator resolves a free-text address to coordinates
type Locator interface {
	Resolve(ctx context.Context, address string) *geo.Point
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location *geo.Point `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocoder resolves addresses through the provider's geocoding endpoint
type Geocoder struct {
	client  *Client
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// GeocoderOption configures a Geocoder
type GeocoderOption func(*Geocoder)

// WithCache caches resolved points for ttl
func WithCache(cache Cache, ttl time.Duration) GeocoderOption {
	return func(g *Geocoder) {
		g.cache = cache
		g.ttl = ttl
	}
}

// WithGeocoderMetrics records cache hits and misses
func WithGeocoderMetrics(m *metrics.Metrics) GeocoderOption {
	return func(g *Geocoder) {
		g.metrics = m
	}
}

// NewGeocoder creates a Geocoder on top of client
func NewGeocoder(client *Client, opts ...GeocoderOption) *Geocoder {
	g := &Geocoder{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve returns the first result's coordinates, or nil when the address
// cannot be resolved. Provider failures are logged, never returned.
func (g *Geocoder) Resolve(ctx context.Context, address string) *geo.Point {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	key := "geocode:" + strings.ToLower(address)
	if g.cache != nil {
		var cached geo.Point
		err := g.cache.GetJSON(ctx, key, &cached)
		switch {
		case err == nil:
			g.metrics.RecordCacheHit("geocode")
			return &cached
		case errors.Is(err, cache.ErrMiss):
			g.metrics.RecordCacheMiss("geocode")
		default:
			g.client.logger.Warn("geocode cache read failed", "error", err)
		}
	}

	var resp geocodeResponse
	params := url.Values{"address": {address}}
	if err := g.client.getJSON(ctx, APIGeocoding, "/geocode/json", params, &resp); err != nil {
		g.client.logger.Error("geocoding failed", "address", address, "error", err)
		return nil
	}

	if len(resp.Results) == 0 || resp.Results[0].Geometry.Location == nil {
		g.client.logger.Warn("geocoding returned no results", "address", address, "status", resp.Status)
		return nil
	}

	point := *resp.Results[0].Geometry.Location
	if !point.Valid() {
		g.client.logger.Warn("geocoding returned out of range coordinates", "address", address, "point", point.String())
		return nil
	}
	if g.cache != nil {
		if err := g.cache.SetJSON(ctx, key, point, g.ttl); err != nil {
			g.client.logger.Warn("geocode cache write failed", "error", err)
		}
	}
	return &point
}
