package api

import (
	"fmt"
	"strings"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
)

type boundsJSON struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// shapeRequest is the descriptor the map client sends for a drawn shape.
type shapeRequest struct {
	Type     string       `json:"type" binding:"required"`
	Center   *geo.LatLng  `json:"center"`
	Radius   float64      `json:"radius"`
	Bounds   *boundsJSON  `json:"bounds"`
	Vertices []geo.LatLng `json:"vertices"`
}

func (r shapeRequest) toShape() (geo.Shape, error) {
	var shape geo.Shape

	switch strings.ToLower(r.Type) {
	case "circle":
		if r.Center == nil {
			return nil, fmt.Errorf("%w: circle requires a center", geo.ErrInvalidShape)
		}
		shape = geo.Circle{Center: *r.Center, RadiusMeters: r.Radius}
	case "rectangle":
		if r.Bounds == nil {
			return nil, fmt.Errorf("%w: rectangle requires bounds", geo.ErrInvalidShape)
		}
		shape = r.Bounds.region()
	case "polygon":
		switch {
		case len(r.Vertices) > 0:
			region, err := geo.RegionFromVertices(r.Vertices)
			if err != nil {
				return nil, err
			}
			shape = region
		case r.Bounds != nil:
			shape = r.Bounds.region()
		default:
			return nil, fmt.Errorf("%w: polygon requires vertices or bounds", geo.ErrInvalidShape)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", geo.ErrInvalidShape, r.Type)
	}

	if err := geo.Validate(shape); err != nil {
		return nil, err
	}
	return shape, nil
}

func (b boundsJSON) region() geo.BoundedRegion {
	return geo.NewBoundedRegion(
		geo.LatLng{Lat: b.South, Lng: b.West},
		geo.LatLng{Lat: b.North, Lng: b.East},
	)
}

// shapeResponse echoes the shape a result was computed for.
type shapeResponse struct {
	Kind   geo.ShapeKind `json:"kind"`
	Center *geo.LatLng   `json:"center,omitempty"`
	Radius float64       `json:"radius,omitempty"`
	Bounds boundsJSON    `json:"bounds"`
}

func toShapeResponse(s geo.Shape) *shapeResponse {
	if s == nil {
		return nil
	}

	b := s.Bound()
	resp := &shapeResponse{
		Kind: s.Kind(),
		Bounds: boundsJSON{
			South: b.Min.Lat(),
			West:  b.Min.Lon(),
			North: b.Max.Lat(),
			East:  b.Max.Lon(),
		},
	}
	if c, ok := s.(geo.Circle); ok {
		center := c.Center
		resp.Center = &center
		resp.Radius = c.RadiusMeters
	}
	return resp
}
