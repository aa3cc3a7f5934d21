package geo

import (
	orbgeo "github.com/paulmach/orb/geo"
)

// Containment decides whether candidates fall inside a drawn shape.
type Containment interface {
	IntersectsRing(s Shape, r Ring) bool
	ContainsPoint(s Shape, p LatLng) bool
}

// BoundingBoxContainment compares boxes instead of true outlines.
//
// A ring meets a region when their boxes overlap. A ring meets a circle when
// the boxes overlap and at least one ring vertex is within the radius, so a
// ring that surrounds a small circle without a vertex inside it does not
// count. Points are tested against the circle radius or the region box.
type BoundingBoxContainment struct{}

func (BoundingBoxContainment) IntersectsRing(s Shape, r Ring) bool {
	if len(r) == 0 || s == nil {
		return false
	}
	if !s.Bound().Intersects(r.Bound()) {
		return false
	}

	c, ok := s.(Circle)
	if !ok {
		return true
	}
	for _, v := range r {
		if Distance(v, c.Center) <= c.RadiusMeters {
			return true
		}
	}
	return false
}

func (BoundingBoxContainment) ContainsPoint(s Shape, p LatLng) bool {
	switch s := s.(type) {
	case Circle:
		return Distance(p, s.Center) <= s.RadiusMeters
	case BoundedRegion:
		return s.Bounds.Contains(p.Point())
	default:
		return false
	}
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b LatLng) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}
