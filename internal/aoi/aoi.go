package aoi

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry is returned for empty rings and rings with fewer than 3 distinct vertices.
var ErrInvalidGeometry = errors.New("invalid geometry")

const (
	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

// AreaOfInterest is a closed ring of lon/lat vertices in EPSG:4326.
// It is immutable: accessors return copies.
type AreaOfInterest struct {
	ring orb.Ring
}

type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
}

// New builds an area from ring vertices without validating them.
func New(points ...orb.Point) AreaOfInterest {
	ring := make(orb.Ring, len(points))
	copy(ring, points)
	return AreaOfInterest{ring: ring}
}

func (a AreaOfInterest) Ring() orb.Ring {
	return a.ring.Clone()
}

func (a AreaOfInterest) IsZero() bool {
	return len(a.ring) == 0
}

func (a AreaOfInterest) Polygon() orb.Polygon {
	return orb.Polygon{a.Ring()}
}

// Validate checks the ring has at least 3 distinct vertices.
func (a AreaOfInterest) Validate() error {
	if len(a.ring) == 0 {
		return fmt.Errorf("%w: empty ring", ErrInvalidGeometry)
	}
	distinct := make(map[orb.Point]struct{}, len(a.ring))
	for _, point := range a.ring {
		distinct[point] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("%w: ring has %d distinct vertices, need at least 3", ErrInvalidGeometry, len(distinct))
	}
	return nil
}

func (a AreaOfInterest) BoundingBox() (Bounds, error) {
	if err := a.Validate(); err != nil {
		return Bounds{}, err
	}
	bound := a.ring.Bound()
	return Bounds{
		MinLon: bound.Min.Lon(),
		MaxLon: bound.Max.Lon(),
		MinLat: bound.Min.Lat(),
		MaxLat: bound.Max.Lat(),
	}, nil
}

// ApproxAreaKm2 estimates the area of the bounding box. It is not a polygon area.
func (a AreaOfInterest) ApproxAreaKm2() (float64, error) {
	bounds, err := a.BoundingBox()
	if err != nil {
		return 0, err
	}
	return bounds.AreaKm2(), nil
}

// Centroid of the polygon; falls back to the bbox center for degenerate rings.
func (a AreaOfInterest) Centroid() (orb.Point, error) {
	bounds, err := a.BoundingBox()
	if err != nil {
		return orb.Point{}, err
	}
	centroid, area := planar.CentroidArea(a.Polygon())
	if area == 0 {
		return bounds.Center(), nil
	}
	return centroid, nil
}

// GeoJSON encodes the area as a Polygon geometry object.
func (a AreaOfInterest) GeoJSON() ([]byte, error) {
	return geojson.NewGeometry(a.Polygon()).MarshalJSON()
}

func (b Bounds) Center() orb.Point {
	return orb.Point{(b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2}
}

// WidthKm and HeightKm treat the box as a flat rectangle at its mid latitude.
func (b Bounds) WidthKm() float64 {
	midLat := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	return (b.MaxLon - b.MinLon) * kmPerDegreeLon * math.Cos(midLat)
}

func (b Bounds) HeightKm() float64 {
	return (b.MaxLat - b.MinLat) * kmPerDegreeLat
}

func (b Bounds) AreaKm2() float64 {
	return math.Abs(b.WidthKm() * b.HeightKm())
}

// Array returns the box as [minLon, minLat, maxLon, maxLat].
func (b Bounds) Array() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}
