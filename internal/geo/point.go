// Package geo answers proximity questions about accounts and listings:
// great-circle distances, search rectangles and an in-memory R-tree index
// of organization locations.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for every distance here.
const EarthRadiusMeters = 6371008.8

// Point is a location stored the way it is persisted: [longitude, latitude].
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point lies inside the WGS84 coordinate range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lng) || math.IsNaN(p.Lat) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusMeters
}

// Rect is an axis-aligned longitude/latitude rectangle.
type Rect struct {
	Min Point
	Max Point
}

func (r Rect) bounds() (min, max [2]float64) {
	return [2]float64{r.Min.Lng, r.Min.Lat}, [2]float64{r.Max.Lng, r.Max.Lat}
}

// BoundingBox returns the rectangles covering every point within radiusMeters
// of p. Circles crossing the antimeridian come back as two rectangles; circles
// touching a pole widen to the full longitude band.
func BoundingBox(p Point, radiusMeters float64) []Rect {
	ang := radiusMeters / EarthRadiusMeters
	lat := p.Lat * math.Pi / 180
	lng := p.Lng * math.Pi / 180

	minLat, maxLat := lat-ang, lat+ang
	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 || ang >= math.Pi {
		return []Rect{{
			Min: Point{Lng: -180, Lat: math.Max(degrees(minLat), -90)},
			Max: Point{Lng: 180, Lat: math.Min(degrees(maxLat), 90)},
		}}
	}

	dLng := math.Asin(math.Sin(ang) / math.Cos(lat))
	minLng, maxLng := degrees(lng-dLng), degrees(lng+dLng)
	loLat, hiLat := degrees(minLat), degrees(maxLat)

	switch {
	case minLng < -180:
		return []Rect{
			{Min: Point{Lng: minLng + 360, Lat: loLat}, Max: Point{Lng: 180, Lat: hiLat}},
			{Min: Point{Lng: -180, Lat: loLat}, Max: Point{Lng: maxLng, Lat: hiLat}},
		}
	case maxLng > 180:
		return []Rect{
			{Min: Point{Lng: minLng, Lat: loLat}, Max: Point{Lng: 180, Lat: hiLat}},
			{Min: Point{Lng: -180, Lat: loLat}, Max: Point{Lng: maxLng - 360, Lat: hiLat}},
		}
	}
	return []Rect{{Min: Point{Lng: minLng, Lat: loLat}, Max: Point{Lng: maxLng, Lat: hiLat}}}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
