// Package geo holds the coordinate, ring and shape primitives used by the
// coverage analysis: projection of raw source coordinates, ring building and
// containment tests against a drawn shape.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

var ErrProjection = errors.New("projection failed")

// Coordinate is a raw pair in source order: (lng, lat) for geographic data,
// (easting, northing) for projected data.
type Coordinate [2]float64

// LatLng is a normalized geographic position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns p as an orb point, which is ordered (lng, lat).
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func (p LatLng) valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Projector converts planar coordinates back to geographic ones.
type Projector interface {
	ToLatLng(easting, northing float64) (LatLng, error)
}

// Normalizer turns a raw source coordinate into a LatLng.
type Normalizer interface {
	Normalize(c Coordinate) (LatLng, error)
}

// IsProjected classifies c by value range alone: anything strictly beyond
// 180 on the first axis or 90 on the second cannot be geographic.
// Negative values and the exact boundaries stay geographic.
func IsProjected(c Coordinate) bool {
	return c[0] > 180 || c[1] > 90
}

// RangeNormalizer projects coordinates that IsProjected flags and reads the
// rest as (lng, lat).
type RangeNormalizer struct {
	Projector Projector
}

func (n RangeNormalizer) Normalize(c Coordinate) (LatLng, error) {
	if IsProjected(c) {
		return n.Projector.ToLatLng(c[0], c[1])
	}
	return LatLng{Lat: c[1], Lng: c[0]}, nil
}

// ProjectedNormalizer always treats its input as (easting, northing).
type ProjectedNormalizer struct {
	Projector Projector
}

func (n ProjectedNormalizer) Normalize(c Coordinate) (LatLng, error) {
	return n.Projector.ToLatLng(c[0], c[1])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
