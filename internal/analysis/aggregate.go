// Package analysis aggregates population and shelter capacity inside a drawn
// shape and keeps the per-session draw state.
package analysis

import (
	"log/slog"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

// Engine bundles the strategies an aggregation pass needs.
type Engine struct {
	Areas       geo.Normalizer // population rings, classified by value range
	Shelters    geo.Normalizer // shelter points, always projected
	Containment geo.Containment
}

// NewEngine wires the default strategies around a projector.
func NewEngine(p geo.Projector) Engine {
	return Engine{
		Areas:       geo.RangeNormalizer{Projector: p},
		Shelters:    geo.ProjectedNormalizer{Projector: p},
		Containment: geo.BoundingBoxContainment{},
	}
}

// Aggregate runs one pass over each dataset against shape. Records missing a
// required field are skipped without being counted; areas whose ring cannot
// be built count as errors; shelters that fail to project are skipped.
func (e Engine) Aggregate(areas []models.PopulationArea, shelters []models.ShelterSite, shape geo.Shape) models.AnalysisResult {
	var res models.AnalysisResult

	for i := range areas {
		a := &areas[i]
		if !a.Usable() {
			continue
		}
		res.AreasProcessed++

		ring, err := geo.BuildRing(a.Geometry, e.Areas)
		if err != nil {
			res.AreasWithErrors++
			slog.Debug("skipping population area", "id", a.ID, "error", err)
			continue
		}

		if e.Containment.IntersectsRing(shape, ring) {
			res.AreasIntersected++
			res.TotalPopulation += *a.TotalPopulation
		}
	}

	for i := range shelters {
		s := &shelters[i]
		if !s.Usable() {
			continue
		}

		loc, err := e.Shelters.Normalize(*s.Location)
		if err != nil {
			slog.Debug("skipping shelter", "id", s.ID, "error", err)
			continue
		}

		if e.Containment.ContainsPoint(shape, loc) {
			res.BunkersInside++
			res.TotalShelterCapacity += *s.Capacity
		}
	}

	res.CoveragePercentage = Coverage(res.TotalShelterCapacity, res.TotalPopulation)
	return res
}

// Coverage returns capacity as a percentage of population. It is 0 when
// population is 0 and is not clamped at 100.
func Coverage(capacity, population float64) float64 {
	if population == 0 {
		return 0
	}
	return capacity / population * 100
}
