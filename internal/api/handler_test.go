package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-shelter-coverage/internal/analysis"
	"github.com/mr1hm/go-shelter-coverage/internal/broadcast"
	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
	"github.com/mr1hm/go-shelter-coverage/internal/repository"
)

var projector = geo.UTMProjector{Zone: 33, Northern: true}

// shelterCoord is a point in central Oslo in UTM zone 33N.
var shelterCoord = geo.Coordinate{262600, 6650000}

// mockRepo implements repository.DatasetRepository for testing
type mockRepo struct {
	areas, shelters int
	err             error
}

func (m *mockRepo) UpsertArea(ctx context.Context, a *models.PopulationArea) error { return nil }

func (m *mockRepo) ListAreas(ctx context.Context, opts repository.Filter) ([]models.PopulationArea, error) {
	return nil, nil
}

func (m *mockRepo) PruneAreas(ctx context.Context, before time.Time) (int64, error) { return 0, nil }

func (m *mockRepo) UpsertShelter(ctx context.Context, s *models.ShelterSite) error { return nil }

func (m *mockRepo) ListShelters(ctx context.Context, opts repository.Filter) ([]models.ShelterSite, error) {
	return nil, nil
}

func (m *mockRepo) PruneShelters(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockRepo) Counts(ctx context.Context) (int, int, error) {
	return m.areas, m.shelters, m.err
}

func ptr(f float64) *float64 { return &f }

// testDataset places one 100-person area and one 50-place shelter at the
// same spot, plus an area far away.
func testDataset(t *testing.T) (*analysis.Dataset, geo.LatLng) {
	t.Helper()
	center, err := projector.ToLatLng(shelterCoord[0], shelterCoord[1])
	if err != nil {
		t.Fatalf("failed to project test shelter: %v", err)
	}

	square := func(lat, lng float64) []geo.Coordinate {
		return []geo.Coordinate{
			{lng - 0.001, lat - 0.001},
			{lng + 0.001, lat - 0.001},
			{lng + 0.001, lat + 0.001},
			{lng - 0.001, lat + 0.001},
		}
	}

	loc := shelterCoord
	return &analysis.Dataset{
		Areas: []models.PopulationArea{
			{ID: "near", Geometry: square(center.Lat, center.Lng), TotalPopulation: ptr(100)},
			{ID: "far", Geometry: square(center.Lat+1, center.Lng), TotalPopulation: ptr(900)},
			{ID: "missing", TotalPopulation: ptr(5)},
		},
		Shelters: []models.ShelterSite{
			{ID: "s1", Location: &loc, Capacity: ptr(50), Address: "Storgata 1"},
		},
		LoadedAt: time.Now(),
	}, center
}

func setupTestRouter(t *testing.T, repo repository.DatasetRepository) (*gin.Engine, *analysis.Service, *broadcast.Broadcaster, geo.LatLng) {
	gin.SetMode(gin.TestMode)

	b := broadcast.NewBroadcaster()
	svc := analysis.NewService(analysis.NewEngine(projector), b)
	ds, center := testDataset(t)
	svc.SetDataset(ds)

	router := gin.New()
	handler := NewHandler(svc, repo, b)
	handler.RegisterRoutes(router)
	return router, svc, b, center
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func circleBody(center geo.LatLng, radius float64) map[string]any {
	return map[string]any{
		"type":   "circle",
		"center": map[string]float64{"lat": center.Lat, "lng": center.Lng},
		"radius": radius,
	}
}

func TestAnalyze_Circle(t *testing.T) {
	router, _, _, center := setupTestRouter(t, nil)

	w := doJSON(router, http.MethodPost, "/api/analyze", circleBody(center, 500))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp analysisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	r := resp.Result
	if r.TotalPopulation != 100 || r.TotalShelterCapacity != 50 || r.CoveragePercentage != 50 {
		t.Errorf("unexpected totals: %+v", r)
	}
	if r.AreasProcessed != 2 || r.AreasIntersected != 1 || r.BunkersInside != 1 {
		t.Errorf("unexpected counters: %+v", r)
	}
	if resp.Shape == nil || resp.Shape.Kind != geo.KindCircle || resp.Shape.Radius != 500 {
		t.Errorf("unexpected shape echo: %+v", resp.Shape)
	}
}

func TestAnalyze_RectangleAwayFromData(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, nil)

	body := map[string]any{
		"type":   "rectangle",
		"bounds": map[string]float64{"south": 10, "west": 10, "north": 11, "east": 11},
	}
	w := doJSON(router, http.MethodPost, "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp analysisResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result.TotalPopulation != 0 || resp.Result.CoveragePercentage != 0 {
		t.Errorf("expected empty result, got %+v", resp.Result)
	}
	if resp.Shape.Kind != geo.KindBoundedRegion {
		t.Errorf("expected bounded region, got %s", resp.Shape.Kind)
	}
}

func TestAnalyze_PolygonVertices(t *testing.T) {
	router, _, _, center := setupTestRouter(t, nil)

	body := map[string]any{
		"type": "polygon",
		"vertices": []map[string]float64{
			{"lat": center.Lat - 0.01, "lng": center.Lng - 0.01},
			{"lat": center.Lat - 0.01, "lng": center.Lng + 0.01},
			{"lat": center.Lat + 0.01, "lng": center.Lng},
		},
	}
	w := doJSON(router, http.MethodPost, "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp analysisResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result.TotalPopulation != 100 || resp.Result.BunkersInside != 1 {
		t.Errorf("unexpected result: %+v", resp.Result)
	}
}

func TestAnalyze_InvalidShapes(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing type", map[string]any{"radius": 10}},
		{"unknown type", map[string]any{"type": "hexagon"}},
		{"circle without center", map[string]any{"type": "circle", "radius": 10}},
		{"zero radius", circleBody(geo.LatLng{Lat: 59.9, Lng: 10.7}, 0)},
		{"center out of range", circleBody(geo.LatLng{Lat: 95, Lng: 10.7}, 100)},
		{"rectangle without bounds", map[string]any{"type": "rectangle"}},
		{"polygon with two vertices", map[string]any{
			"type":     "polygon",
			"vertices": []map[string]float64{{"lat": 1, "lng": 1}, {"lat": 2, "lng": 2}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/analyze", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
		})
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{not json"))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed body, got %d", w.Code)
	}
}

func TestSessions_DrawReplaceAndClear(t *testing.T) {
	router, _, _, center := setupTestRouter(t, nil)

	w := doJSON(router, http.MethodPut, "/api/sessions/map-1/shape", circleBody(center, 500))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// edit: moved away from the data, previous result must not linger
	far := map[string]any{
		"type":   "rectangle",
		"bounds": map[string]float64{"south": 0, "west": 0, "north": 1, "east": 1},
	}
	doJSON(router, http.MethodPut, "/api/sessions/map-1/shape", far)

	var state sessionResponse
	w = doJSON(router, http.MethodGet, "/api/sessions/map-1", nil)
	json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Active || state.Result.TotalPopulation != 0 || state.Shape.Kind != geo.KindBoundedRegion {
		t.Errorf("expected replaced empty region, got %+v", state)
	}

	w = doJSON(router, http.MethodDelete, "/api/sessions/map-1/shape", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.Active || state.Result != (models.AnalysisResult{}) {
		t.Errorf("expected cleared state, got %+v", state)
	}

	w = doJSON(router, http.MethodGet, "/api/sessions/map-1", nil)
	var after sessionResponse
	json.Unmarshal(w.Body.Bytes(), &after)
	if after.Active || after.Shape != nil {
		t.Errorf("expected inactive session, got %+v", after)
	}
}

func TestStreamEvents_OnlySessionEvents(t *testing.T) {
	router, svc, b, center := setupTestRouter(t, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/api/sessions/map-1/events", nil)

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.SubscriberCount() != 1 {
		t.Fatal("stream never subscribed")
	}

	svc.Draw("other", geo.Circle{Center: center, RadiusMeters: 100})
	svc.Draw("map-1", geo.Circle{Center: center, RadiusMeters: 500})
	svc.Clear("map-1")

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after client went away")
	}

	body := w.Body.String()
	// gin appends a charset when the first event is rendered
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected text/event-stream, got %s", ct)
	}
	if !strings.Contains(body, "event:result") || !strings.Contains(body, "event:cleared") {
		t.Errorf("expected result and cleared events, got %q", body)
	}
	if strings.Contains(body, `"session":"other"`) {
		t.Errorf("stream leaked another session's event: %q", body)
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected subscriber to be removed, got %d", b.SubscriberCount())
	}
}

func TestGetAreas_ReturnsGeoJSON(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, nil)

	w := doJSON(router, http.MethodGet, "/api/areas", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	// the area without geometry is left out
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if fc.Features[0].ID != "near" || fc.Features[0].Properties["population"] != float64(100) {
		t.Errorf("unexpected first feature: %+v", fc.Features[0])
	}
	if fc.Features[0].Geometry.GeoJSONType() != "Polygon" {
		t.Errorf("expected Polygon, got %s", fc.Features[0].Geometry.GeoJSONType())
	}
}

func TestGetAreas_Pagination(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, nil)

	w := doJSON(router, http.MethodGet, "/api/areas?offset=1&limit=1", nil)
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].ID != "far" {
		t.Errorf("expected only the far area, got %+v", fc.Features)
	}

	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		w := doJSON(router, http.MethodGet, "/api/areas?"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for %s, got %d", q, w.Code)
		}
	}
}

func TestGetShelters_ReturnsGeoJSON(t *testing.T) {
	router, _, _, center := setupTestRouter(t, nil)

	w := doJSON(router, http.MethodGet, "/api/shelters", nil)
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 shelter, got %d", len(fc.Features))
	}

	f := fc.Features[0]
	if f.Properties["capacity"] != float64(50) || f.Properties["address"] != "Storgata 1" {
		t.Errorf("unexpected properties: %+v", f.Properties)
	}
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		t.Fatalf("expected Point geometry, got %T", f.Geometry)
	}
	if geo.Distance(center, geo.LatLng{Lat: p.Lat(), Lng: p.Lon()}) > 1 {
		t.Errorf("expected shelter at projected position, got %v", f.Geometry)
	}
}

func TestHealth(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, &mockRepo{areas: 3, shelters: 1})

	w := doJSON(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" || resp["areas"] != float64(3) || resp["stored_areas"] != float64(3) {
		t.Errorf("unexpected health response: %v", resp)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	router, _, _, _ := setupTestRouter(t, &mockRepo{err: errors.New("disk gone")})

	w := doJSON(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _, _, center := setupTestRouter(t, nil)
	doJSON(router, http.MethodPost, "/api/analyze", circleBody(center, 500))

	w := doJSON(router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shelter_coverage_analysis_runs_total") {
		t.Error("expected analysis counter in metrics output")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK {
		t.Errorf("expected first request to pass, got %d", codes[0])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected burst to be limited, got %d", codes[2])
	}
}
