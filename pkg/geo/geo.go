// Package geo holds coordinates and the planar projection used for
// competitor distances.
package geo

import (
	"fmt"
	"math"
)

// earthRadius is the WGS84 semi-major axis used by EPSG:3857.
const earthRadius = 6378137.0

// maxMercatorLat keeps the projection finite near the poles.
const maxMercatorLat = 85.05112878

// Point is a WGS84 latitude/longitude pair
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the point as "lat,lng", the provider's location format
func (p Point) String() string {
	return fmt.Sprintf("%v,%v", p.Lat, p.Lng)
}

// Valid reports whether the point lies inside the WGS84 range
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Planar is a projected coordinate in meters
type Planar struct {
	X float64
	Y float64
}

// Mercator projects p into spherical Web Mercator (EPSG:3857)
func Mercator(p Point) Planar {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	x := earthRadius * p.Lng * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return Planar{X: x, Y: y}
}

// PlanarDistance returns the euclidean distance between two projected points
func PlanarDistance(a, b Planar) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Distance returns the EPSG:3857 planar distance in meters between a and b
func Distance(a, b Point) float64 {
	return PlanarDistance(Mercator(a), Mercator(b))
}
