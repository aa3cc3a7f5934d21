package api

import (
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

// areasToGeoJSON renders usable areas as normalized polygons. Areas whose
// ring cannot be built are left out.
func areasToGeoJSON(areas []models.PopulationArea, n geo.Normalizer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range areas {
		a := &areas[i]
		if !a.Usable() {
			continue
		}
		ring, err := geo.BuildRing(a.Geometry, n)
		if err != nil {
			slog.Debug("omitting area from geojson", "id", a.ID, "error", err)
			continue
		}

		f := geojson.NewFeature(ring.Polygon())
		f.ID = a.ID
		f.Properties["population"] = *a.TotalPopulation
		fc.Append(f)
	}

	return fc
}

func sheltersToGeoJSON(shelters []models.ShelterSite, n geo.Normalizer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range shelters {
		s := &shelters[i]
		if !s.Usable() {
			continue
		}
		pos, err := n.Normalize(*s.Location)
		if err != nil {
			continue
		}

		f := geojson.NewFeature(pos.Point())
		f.ID = s.ID
		f.Properties["capacity"] = *s.Capacity
		f.Properties["address"] = s.Address
		fc.Append(f)
	}

	return fc
}
