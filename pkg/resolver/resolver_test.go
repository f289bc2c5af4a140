// Copyright 2025 Shadow Atlas Project

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/datasource"
)

type stubGeocoder struct {
	result GeocodeResult
	err    error
}

func (s *stubGeocoder) Geocode(context.Context, string) (GeocodeResult, error) {
	return s.result, s.err
}

func square(minLng, minLat, maxLng, maxLat float64) boundary.Ring {
	return boundary.Ring{
		{Lng: minLng, Lat: minLat}, {Lng: maxLng, Lat: minLat},
		{Lng: maxLng, Lat: maxLat}, {Lng: minLng, Lat: maxLat},
		{Lng: minLng, Lat: minLat},
	}
}

func testBoundary(id string, bt boundary.Type, ring boundary.Ring, from time.Time) *boundary.Boundary {
	bbox, _ := boundary.RecomputeBBox(boundary.Geometry{Polygon: &boundary.Polygon{Exterior: ring}})
	return &boundary.Boundary{
		ID:        id,
		Type:      bt,
		Geometry:  boundary.Geometry{Polygon: &boundary.Polygon{Exterior: ring}},
		BBox:      bbox,
		ValidFrom: from,
	}
}

func TestResolve_HappyPath_FinestFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	county := testBoundary("county-1", boundary.TypeCounty, square(0, 0, 10, 10), now.AddDate(-1, 0, 0))
	precinct := testBoundary("precinct-1", boundary.TypePrecinct, square(4, 4, 6, 6), now.AddDate(-1, 0, 0))

	src := datasource.NewInMemory("test", []*boundary.Boundary{county, precinct})
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 5, Lat: 5}, Confidence: 95}}

	r := New(geo, &datasource.Multi{Sources: []datasource.Source{src}}, 100, time.Hour)

	results, err := r.Resolve(context.Background(), " 123 Main St ", nil, now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 resolutions, got %d", len(results))
	}
	if results[0].BoundaryID != "precinct-1" {
		t.Fatalf("expected precinct to be first (finest), got %s", results[0].BoundaryID)
	}
}

func TestResolve_LowConfidence(t *testing.T) {
	now := time.Now()
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 0, Lat: 0}, Confidence: 50}}
	r := New(geo, &datasource.Multi{}, 10, time.Hour)

	_, err := r.Resolve(context.Background(), "somewhere", nil, now)
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
}

func TestResolve_NoBoundaries(t *testing.T) {
	now := time.Now()
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 100, Lat: 100}, Confidence: 95}}
	county := testBoundary("county-1", boundary.TypeCounty, square(0, 0, 10, 10), now.AddDate(-1, 0, 0))
	src := datasource.NewInMemory("test", []*boundary.Boundary{county})
	r := New(geo, &datasource.Multi{Sources: []datasource.Source{src}}, 10, time.Hour)

	_, err := r.Resolve(context.Background(), "nowhere", nil, now)
	if !errors.Is(err, ErrNoBoundaries) {
		t.Fatalf("expected ErrNoBoundaries, got %v", err)
	}
}

func TestResolve_CachesResult(t *testing.T) {
	now := time.Now()
	county := testBoundary("county-1", boundary.TypeCounty, square(0, 0, 10, 10), now.AddDate(-1, 0, 0))
	src := datasource.NewInMemory("test", []*boundary.Boundary{county})
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 5, Lat: 5}, Confidence: 95}}
	r := New(geo, &datasource.Multi{Sources: []datasource.Source{src}}, 10, time.Hour)

	first, err := r.Resolve(context.Background(), "123 Main St", nil, now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.cache.Len() != 1 {
		t.Fatalf("expected one cache entry after first resolve")
	}

	second, err := r.Resolve(context.Background(), "123 MAIN ST", nil, now)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if len(first) != len(second) || first[0].BoundaryID != second[0].BoundaryID {
		t.Fatalf("expected cached result to match, got %+v vs %+v", first, second)
	}
}

func TestResolve_FiltersByType(t *testing.T) {
	now := time.Now()
	county := testBoundary("county-1", boundary.TypeCounty, square(0, 0, 10, 10), now.AddDate(-1, 0, 0))
	precinct := testBoundary("precinct-1", boundary.TypePrecinct, square(4, 4, 6, 6), now.AddDate(-1, 0, 0))
	src := datasource.NewInMemory("test", []*boundary.Boundary{county, precinct})
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 5, Lat: 5}, Confidence: 95}}
	r := New(geo, &datasource.Multi{Sources: []datasource.Source{src}}, 10, time.Hour)

	results, err := r.Resolve(context.Background(), "123 Main St", []boundary.Type{boundary.TypeCounty}, now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(results) != 1 || results[0].BoundaryID != "county-1" {
		t.Fatalf("expected only county match, got %+v", results)
	}
}

func TestResolve_ExcludesExpiredBoundaries(t *testing.T) {
	now := time.Now()
	expired := testBoundary("county-old", boundary.TypeCounty, square(0, 0, 10, 10), now.AddDate(-5, 0, 0))
	until := now.AddDate(-1, 0, 0)
	expired.ValidUntil = &until

	src := datasource.NewInMemory("test", []*boundary.Boundary{expired})
	geo := &stubGeocoder{result: GeocodeResult{Point: boundary.Point{Lng: 5, Lat: 5}, Confidence: 95}}
	r := New(geo, &datasource.Multi{Sources: []datasource.Source{src}}, 10, time.Hour)

	_, err := r.Resolve(context.Background(), "123 Main St", nil, now)
	if !errors.Is(err, ErrNoBoundaries) {
		t.Fatalf("expected ErrNoBoundaries for an expired-only candidate set, got %v", err)
	}
}
