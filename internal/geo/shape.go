package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

var ErrInvalidShape = errors.New("invalid shape")

type ShapeKind string

const (
	KindCircle        ShapeKind = "circle"
	KindBoundedRegion ShapeKind = "bounded_region"
)

// Shape is a drawn query shape: either a Circle or a BoundedRegion.
type Shape interface {
	Kind() ShapeKind
	Bound() orb.Bound
}

// Circle is a center with a radius in meters.
type Circle struct {
	Center       LatLng
	RadiusMeters float64
}

func (c Circle) Kind() ShapeKind { return KindCircle }

// Bound returns the box enclosing the circle on the sphere.
func (c Circle) Bound() orb.Bound {
	return orbgeo.NewBoundAroundPoint(c.Center.Point(), c.RadiusMeters)
}

// BoundedRegion is a drawn rectangle or polygon reduced to its bounding box.
type BoundedRegion struct {
	Bounds orb.Bound
}

func (r BoundedRegion) Kind() ShapeKind { return KindBoundedRegion }

func (r BoundedRegion) Bound() orb.Bound { return r.Bounds }

// NewBoundedRegion builds a region from two opposite corners in any order.
func NewBoundedRegion(a, b LatLng) BoundedRegion {
	return BoundedRegion{Bounds: a.Point().Bound().Extend(b.Point())}
}

// RegionFromVertices reduces a drawn polygon to the box around its vertices.
func RegionFromVertices(vertices []LatLng) (BoundedRegion, error) {
	if len(vertices) < MinRingVertices {
		return BoundedRegion{}, fmt.Errorf("%w: polygon needs %d vertices, got %d", ErrInvalidShape, MinRingVertices, len(vertices))
	}
	return BoundedRegion{Bounds: Ring(vertices).Bound()}, nil
}

// Validate rejects shapes no analysis can be run against.
func Validate(s Shape) error {
	switch s := s.(type) {
	case Circle:
		if !s.Center.valid() {
			return fmt.Errorf("%w: center %v out of range", ErrInvalidShape, s.Center)
		}
		if !finite(s.RadiusMeters) || s.RadiusMeters <= 0 {
			return fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidShape, s.RadiusMeters)
		}
	case BoundedRegion:
		lo := LatLng{Lat: s.Bounds.Min.Lat(), Lng: s.Bounds.Min.Lon()}
		hi := LatLng{Lat: s.Bounds.Max.Lat(), Lng: s.Bounds.Max.Lon()}
		if !lo.valid() || !hi.valid() {
			return fmt.Errorf("%w: bounds out of range", ErrInvalidShape)
		}
	case nil:
		return fmt.Errorf("%w: no shape", ErrInvalidShape)
	default:
		return fmt.Errorf("%w: unsupported shape %T", ErrInvalidShape, s)
	}
	return nil
}
