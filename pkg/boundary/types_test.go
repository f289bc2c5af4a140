// Copyright 2025 Shadow Atlas Project

package boundary

import (
	"errors"
	"testing"
	"time"
)

func square(minLng, minLat, maxLng, maxLat float64) Ring {
	return Ring{
		{Lng: minLng, Lat: minLat},
		{Lng: maxLng, Lat: minLat},
		{Lng: maxLng, Lat: maxLat},
		{Lng: minLng, Lat: maxLat},
		{Lng: minLng, Lat: minLat},
	}
}

func TestType_PrecisionOrdering(t *testing.T) {
	if TypePrecinct.PrecisionRank() >= TypeCounty.PrecisionRank() {
		t.Fatalf("precinct must be finer than county")
	}
	if TypeCounty.PrecisionRank() >= TypeState.PrecisionRank() {
		t.Fatalf("county must be finer than state")
	}
}

func TestAuthorityLevel_Ordering(t *testing.T) {
	if AuthorityFederalMandate <= AuthorityFederalTiger {
		t.Fatalf("federal mandate must outrank federal tiger")
	}
	if AuthorityCommunity >= AuthorityMunicipal {
		t.Fatalf("community must be weaker than municipal")
	}
}

func TestBBox_Contains(t *testing.T) {
	b := BBox{MinLng: -1, MinLat: -1, MaxLng: 1, MaxLat: 1}
	if !b.Contains(Point{0, 0}) {
		t.Fatalf("expected center point to be contained")
	}
	if !b.Contains(Point{1, 1}) {
		t.Fatalf("expected edge point to be contained (inclusive)")
	}
	if b.Contains(Point{2, 2}) {
		t.Fatalf("expected outside point to be excluded")
	}
}

func TestBBox_Intersects(t *testing.T) {
	a := BBox{MinLng: 0, MinLat: 0, MaxLng: 2, MaxLat: 2}
	b := BBox{MinLng: 1, MinLat: 1, MaxLng: 3, MaxLat: 3}
	c := BBox{MinLng: 10, MinLat: 10, MaxLng: 12, MaxLat: 12}
	if !a.Intersects(b) {
		t.Fatalf("overlapping boxes should intersect")
	}
	if a.Intersects(c) {
		t.Fatalf("disjoint boxes should not intersect")
	}
}

func TestRecomputeBBox_Polygon(t *testing.T) {
	geom := Geometry{Polygon: &Polygon{Exterior: square(-1, -1, 1, 1)}}
	box, err := RecomputeBBox(geom)
	if err != nil {
		t.Fatalf("RecomputeBBox: %v", err)
	}
	want := BBox{-1, -1, 1, 1}
	if box != want {
		t.Fatalf("got %+v want %+v", box, want)
	}
}

func TestRecomputeBBox_MultiPolygon(t *testing.T) {
	geom := Geometry{MultiPolygon: &MultiPolygon{Polygons: []Polygon{
		{Exterior: square(0, 0, 1, 1)},
		{Exterior: square(5, 5, 6, 6)},
	}}}
	box, err := RecomputeBBox(geom)
	if err != nil {
		t.Fatalf("RecomputeBBox: %v", err)
	}
	want := BBox{0, 0, 6, 6}
	if box != want {
		t.Fatalf("got %+v want %+v", box, want)
	}
}

func TestRecomputeBBox_NoGeometry(t *testing.T) {
	_, err := RecomputeBBox(Geometry{})
	if !errors.Is(err, ErrNoGeometry) {
		t.Fatalf("expected ErrNoGeometry, got %v", err)
	}
}

func TestBoundary_IsValid(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &Boundary{ID: "x", ValidFrom: from, ValidUntil: &until}

	if b.IsValid(from.Add(-time.Hour)) {
		t.Fatalf("boundary should not be valid before ValidFrom")
	}
	if !b.IsValid(from.Add(time.Hour)) {
		t.Fatalf("boundary should be valid between ValidFrom and ValidUntil")
	}
	if b.IsValid(until) {
		t.Fatalf("boundary should not be valid at or after ValidUntil (half-open interval)")
	}
}

func TestBoundary_IsValid_NoExpiry(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &Boundary{ID: "x", ValidFrom: from}
	if !b.IsValid(time.Now()) {
		t.Fatalf("boundary with nil ValidUntil should remain valid indefinitely")
	}
}

func TestBoundary_Equal_ByIDOnly(t *testing.T) {
	a := &Boundary{ID: "same", Name: "Alpha"}
	b := &Boundary{ID: "same", Name: "Beta"}
	c := &Boundary{ID: "other", Name: "Alpha"}

	if !a.Equal(b) {
		t.Fatalf("boundaries with the same ID must be equal regardless of other fields")
	}
	if a.Equal(c) {
		t.Fatalf("boundaries with different IDs must not be equal")
	}
}
