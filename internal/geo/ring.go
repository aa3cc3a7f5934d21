package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var (
	ErrTooFewVertices    = errors.New("not enough valid coordinates")
	ErrMalformedGeometry = errors.New("malformed geometry")
)

// MinRingVertices is the smallest vertex count BuildRing accepts.
const MinRingVertices = 3

// Ring is a normalized outer boundary. Rings built by BuildRing always hold
// at least MinRingVertices vertices.
type Ring []LatLng

// Bound returns the axis-aligned box enclosing r.
func (r Ring) Bound() orb.Bound {
	if len(r) == 0 {
		return orb.Bound{}
	}
	b := r[0].Point().Bound()
	for _, v := range r[1:] {
		b = b.Extend(v.Point())
	}
	return b
}

// Polygon returns r as a closed orb polygon for GeoJSON output.
func (r Ring) Polygon() orb.Polygon {
	ring := make(orb.Ring, 0, len(r)+1)
	for _, v := range r {
		ring = append(ring, v.Point())
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

// BuildRing normalizes raw and drops every coordinate that fails to convert.
// It returns ErrTooFewVertices when fewer than MinRingVertices survive.
func BuildRing(raw []Coordinate, n Normalizer) (Ring, error) {
	ring := make(Ring, 0, len(raw))
	for _, c := range raw {
		ll, err := n.Normalize(c)
		if err != nil {
			continue
		}
		ring = append(ring, ll)
	}

	if len(ring) < MinRingVertices {
		return nil, fmt.Errorf("%w: %d of %d usable", ErrTooFewVertices, len(ring), len(raw))
	}
	return ring, nil
}

// OuterRing extracts the outer ring of the first polygon in g as raw
// coordinates. Holes and any further polygons are ignored.
func OuterRing(g orb.Geometry) ([]Coordinate, error) {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return nil, fmt.Errorf("%w: polygon has no rings", ErrMalformedGeometry)
		}
		return coordinates(g[0]), nil
	case orb.MultiPolygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return nil, fmt.Errorf("%w: multipolygon has no rings", ErrMalformedGeometry)
		}
		return coordinates(g[0][0]), nil
	case nil:
		return nil, fmt.Errorf("%w: no geometry", ErrMalformedGeometry)
	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrMalformedGeometry, g.GeoJSONType())
	}
}

func coordinates(r orb.Ring) []Coordinate {
	out := make([]Coordinate, len(r))
	for i, p := range r {
		out[i] = Coordinate{p[0], p[1]}
	}
	return out
}
