package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

var errNotFeatureCollection = errors.New("document is not a FeatureCollection")

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// rawFeature keeps the geometry undecoded so one bad geometry does not fail
// the whole document.
type rawFeature struct {
	ID         any                `json:"id"`
	Properties geojson.Properties `json:"properties"`
	Geometry   json.RawMessage    `json:"geometry"`
}

func decodeFeatures(data []byte) ([]json.RawMessage, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("error decoding feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type=%q", errNotFeatureCollection, fc.Type)
	}
	return fc.Features, nil
}

// decodeAreas turns population features into areas. A feature without
// geometry keeps a nil Geometry; one whose geometry cannot be read gets an
// empty ring so the analysis counts it as an error.
func decodeAreas(data []byte, populationField string, now time.Time) ([]*models.PopulationArea, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, err
	}

	ids := make(uniqueIDs, len(features))
	areas := make([]*models.PopulationArea, 0, len(features))
	for i, raw := range features {
		var f rawFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Debug("skipping unreadable feature", "dataset", datasetAreas, "index", i, "error", err)
			continue
		}

		area := &models.PopulationArea{
			ID:              ids.claim(datasetAreas, featureID(f.ID, "area", i)),
			TotalPopulation: numeric(f.Properties[populationField]),
			UpdatedAt:       now,
		}

		if hasGeometry(f.Geometry) {
			ring, err := outerRing(f.Geometry)
			if err != nil {
				slog.Debug("malformed area geometry", "id", area.ID, "error", err)
				ring = []geo.Coordinate{}
			}
			area.Geometry = ring
		}

		areas = append(areas, area)
	}

	return areas, nil
}

// decodeShelters turns point features into shelter sites.
func decodeShelters(data []byte, capacityField, addressField string, now time.Time) ([]*models.ShelterSite, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, err
	}

	ids := make(uniqueIDs, len(features))
	shelters := make([]*models.ShelterSite, 0, len(features))
	for i, raw := range features {
		var f rawFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Debug("skipping unreadable feature", "dataset", datasetShelters, "index", i, "error", err)
			continue
		}

		sh := &models.ShelterSite{
			ID:        ids.claim(datasetShelters, featureID(f.ID, "shelter", i)),
			Capacity:  numeric(f.Properties[capacityField]),
			UpdatedAt: now,
		}
		if addr, ok := f.Properties[addressField].(string); ok {
			sh.Address = addr
		}

		if hasGeometry(f.Geometry) {
			g, err := geojson.UnmarshalGeometry(f.Geometry)
			if err == nil {
				if p, ok := g.Geometry().(orb.Point); ok {
					sh.Location = &geo.Coordinate{p[0], p[1]}
				}
			}
			if sh.Location == nil {
				slog.Debug("shelter without point geometry", "id", sh.ID)
			}
		}

		shelters = append(shelters, sh)
	}

	return shelters, nil
}

func outerRing(raw json.RawMessage) ([]geo.Coordinate, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geo.ErrMalformedGeometry, err)
	}
	return geo.OuterRing(g.Geometry())
}

func hasGeometry(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// numeric reads a property that may be a JSON number or a numeric string.
// Anything else, including non-finite values, is treated as missing.
func numeric(v any) *float64 {
	var f float64
	switch v := v.(type) {
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func featureID(id any, prefix string, index int) string {
	switch id := id.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return fmt.Sprintf("%s_%d", prefix, index)
}

// uniqueIDs tracks the IDs handed out for one document. Records are upserted
// by ID, so a repeated source ID would silently replace an earlier record.
type uniqueIDs map[string]bool

// claim returns id, or id with a "~n" suffix when it was already taken.
func (u uniqueIDs) claim(dataset, id string) string {
	out := id
	for n := 1; u[out]; n++ {
		out = fmt.Sprintf("%s~%d", id, n)
	}
	u[out] = true

	if out != id {
		slog.Warn("duplicate feature id", "dataset", dataset, "id", id, "stored_as", out)
	}
	return out
}
