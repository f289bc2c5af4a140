// Copyright 2025 Shadow Atlas Project

package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/provenance"
)

func TestRateLimiter_AllowsBurstThenThrottles(t *testing.T) {
	rl := NewRateLimiter(2)
	if !rl.Allow("host") {
		t.Fatal("first request should be allowed")
	}
	if !rl.Allow("host") {
		t.Fatal("second request should be allowed (burst of 2)")
	}
	if rl.Allow("host") {
		t.Fatal("third immediate request should be throttled")
	}
}

func TestRateLimiter_IndependentPerServerKey(t *testing.T) {
	rl := NewRateLimiter(1)
	if !rl.Allow("host-a") {
		t.Fatal("host-a should be allowed its first request")
	}
	if !rl.Allow("host-b") {
		t.Fatal("host-b should have its own independent bucket")
	}
}

func TestScoreLayer_CouncilDistrictsIsHighConfidence(t *testing.T) {
	layer := LayerInfo{
		Name:         "CouncilDistricts",
		GeometryType: "esriGeometryPolygon",
		Fields:       []string{"OBJECTID", "DISTRICT", "SHAPE_Area"},
		FeatureCount: 9,
		Extent:       boundary.BBox{MinLng: -90, MinLat: 38, MaxLng: -89, MaxLat: 39},
	}
	city := City{Name: "Springfield", ExpectedBBox: boundary.BBox{MinLng: -90, MinLat: 38, MaxLng: -89, MaxLat: 39}}

	score, notes := ScoreLayer(layer, city)
	if score < HighConfidenceThreshold {
		t.Fatalf("expected high confidence score, got %d (notes: %v)", score, notes)
	}
	if TierForScore(score) != TierHighConfidence {
		t.Fatalf("expected TierHighConfidence, got %s", TierForScore(score))
	}
}

func TestScoreLayer_SchoolDistrictsIsRejected(t *testing.T) {
	layer := LayerInfo{
		Name:         "SchoolDistrictBoundaries",
		GeometryType: "esriGeometryPolygon",
		FeatureCount: 5,
	}
	score, _ := ScoreLayer(layer, City{})
	if TierForScore(score) != TierRejected {
		t.Fatalf("expected rejection for a school-district layer, got score %d", score)
	}
}

func TestScoreLayer_NonPolygonGeometryScoresLower(t *testing.T) {
	polygon := LayerInfo{Name: "WardBoundaries", GeometryType: "esriGeometryPolygon", FeatureCount: 8}
	point := LayerInfo{Name: "WardBoundaries", GeometryType: "esriGeometryPoint", FeatureCount: 8}

	pScore, _ := ScoreLayer(polygon, City{})
	ptScore, _ := ScoreLayer(point, City{})
	if ptScore >= pScore {
		t.Fatalf("point geometry (%d) should score lower than polygon (%d)", ptScore, pScore)
	}
}

// fakeArcGISServer serves a minimal two-level folder tree with one
// service exposing one council-district-shaped layer.
func fakeArcGISServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/arcgis/rest/services", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"folders":  []string{"Boundaries"},
			"services": []map[string]string{},
		})
	})
	mux.HandleFunc("/arcgis/rest/services/Boundaries", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"folders": []string{},
			"services": []map[string]string{
				{"name": "CouncilDistricts", "type": "MapServer"},
			},
		})
	})
	mux.HandleFunc("/arcgis/rest/services/Boundaries/CouncilDistricts/MapServer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"layers": []map[string]any{
				{"id": 0, "name": "Council Districts"},
			},
		})
	})
	mux.HandleFunc("/arcgis/rest/services/Boundaries/CouncilDistricts/MapServer/0", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":           0,
			"name":         "Council Districts",
			"geometryType": "esriGeometryPolygon",
			"fields": []map[string]string{
				{"name": "DISTRICT"},
			},
			"extent": map[string]float64{"xmin": -90, "ymin": 38, "xmax": -89, "ymax": 39},
		})
	})
	mux.HandleFunc("/arcgis/rest/services/Boundaries/CouncilDistricts/MapServer/0/query", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"count": 9})
	})

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestEngine_WalkFolders_FindsNestedService(t *testing.T) {
	srv := fakeArcGISServer(t)
	defer srv.Close()

	e := NewEngine()
	services, err := e.WalkFolders(context.Background(), srv.URL+"/arcgis/rest/services")
	if err != nil {
		t.Fatalf("WalkFolders returned error: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d: %v", len(services), services)
	}
	if !strings.HasSuffix(services[0], "CouncilDistricts/MapServer") {
		t.Fatalf("unexpected service url: %s", services[0])
	}
}

func TestEngine_FetchLayerDetails_PopulatesFields(t *testing.T) {
	srv := fakeArcGISServer(t)
	defer srv.Close()

	e := NewEngine()
	info, err := e.FetchLayerDetails(context.Background(), srv.URL+"/arcgis/rest/services/Boundaries/CouncilDistricts/MapServer/0")
	if err != nil {
		t.Fatalf("FetchLayerDetails returned error: %v", err)
	}
	if info.Name != "Council Districts" {
		t.Fatalf("unexpected name: %s", info.Name)
	}
	if info.FeatureCount != 9 {
		t.Fatalf("expected feature count 9, got %d", info.FeatureCount)
	}
	if len(info.Fields) != 1 || info.Fields[0] != "DISTRICT" {
		t.Fatalf("unexpected fields: %v", info.Fields)
	}
}

func TestEngine_Discover_EndToEndAgainstFakeServer(t *testing.T) {
	srv := fakeArcGISServer(t)
	defer srv.Close()

	dir := t.TempDir()
	log, err := provenance.New(dir)
	if err != nil {
		t.Fatalf("provenance.New: %v", err)
	}

	e := NewEngine()
	// Override probing: inject the fake server directly as a "found"
	// candidate rather than trying to match it to a urlPatterns guess,
	// since httptest serves on 127.0.0.1:<port> not a {slug} hostname.
	city := City{
		Slug:         "testville",
		Name:         "Testville",
		State:        "IL",
		PlaceFIPS:    "1778861",
		ExpectedBBox: boundary.BBox{MinLng: -90, MinLat: 38, MaxLng: -89, MaxLat: 39},
	}

	serviceURLs, err := e.WalkFolders(context.Background(), srv.URL+"/arcgis/rest/services")
	if err != nil {
		t.Fatalf("WalkFolders: %v", err)
	}
	if len(serviceURLs) != 1 {
		t.Fatalf("expected 1 service url, got %d", len(serviceURLs))
	}

	info, err := e.FetchLayerDetails(context.Background(), serviceURLs[0]+"/0")
	if err != nil {
		t.Fatalf("FetchLayerDetails: %v", err)
	}
	scored := Score(*info, city)
	if scored.Tier != TierHighConfidence {
		t.Fatalf("expected high confidence, got %s (score %d, notes %v)", scored.Tier, scored.Score, scored.Notes)
	}

	e.recordLayerScore(log, city, &Candidate{City: city, BaseURL: srv.URL, Kind: "arcgis"}, scored, time.Now())

	entries, err := log.Query(provenance.Filter{FIPS: city.PlaceFIPS})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 provenance entry, got %d", len(entries))
	}
	if entries[0].Confidence != scored.Score {
		t.Fatalf("expected recorded confidence %d, got %d", scored.Score, entries[0].Confidence)
	}
}

