package models

import (
	"time"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
)

// PopulationArea is one polygon of the population grid.
type PopulationArea struct {
	ID              string           // Unique ID from source (e.g., "ssb_22620006650000")
	Geometry        []geo.Coordinate // raw outer ring; nil when the source had no geometry
	TotalPopulation *float64         // nil when the population field is missing
	UpdatedAt       time.Time
}

// Usable reports whether both required fields are present.
func (a *PopulationArea) Usable() bool {
	return a.Geometry != nil && a.TotalPopulation != nil
}

// ShelterSite is a public shelter located by a single projected point.
type ShelterSite struct {
	ID        string
	Location  *geo.Coordinate // (easting, northing)
	Capacity  *float64
	Address   string
	UpdatedAt time.Time
}

func (s *ShelterSite) Usable() bool {
	return s.Location != nil && s.Capacity != nil
}
