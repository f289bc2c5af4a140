// Copyright 2025 Shadow Atlas Project

package pip

import (
	"testing"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

func square(minLng, minLat, maxLng, maxLat float64) boundary.Ring {
	return boundary.Ring{
		{Lng: minLng, Lat: minLat},
		{Lng: maxLng, Lat: minLat},
		{Lng: maxLng, Lat: maxLat},
		{Lng: minLng, Lat: maxLat},
		{Lng: minLng, Lat: minLat},
	}
}

func simpleBoundary(t boundary.Type, ring boundary.Ring) *boundary.Boundary {
	return &boundary.Boundary{
		ID:   "test",
		Type: t,
		Geometry: boundary.Geometry{
			Polygon: &boundary.Polygon{Exterior: ring},
		},
	}
}

func TestContains_Interior(t *testing.T) {
	b := simpleBoundary(boundary.TypeCounty, square(0, 0, 10, 10))
	in, err := Contains(b, boundary.Point{Lng: 5, Lat: 5})
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !in {
		t.Fatalf("expected interior point to be contained")
	}
}

func TestContains_Exterior(t *testing.T) {
	b := simpleBoundary(boundary.TypeCounty, square(0, 0, 10, 10))
	in, err := Contains(b, boundary.Point{Lng: 50, Lat: 50})
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if in {
		t.Fatalf("expected exterior point to be excluded")
	}
}

func TestContains_OnEdge(t *testing.T) {
	b := simpleBoundary(boundary.TypeCounty, square(0, 0, 10, 10))
	in, err := Contains(b, boundary.Point{Lng: 0, Lat: 5})
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !in {
		t.Fatalf("expected edge point to be treated as contained within tolerance")
	}
}

func TestContains_Hole(t *testing.T) {
	b := &boundary.Boundary{
		ID:   "donut",
		Type: boundary.TypeCounty,
		Geometry: boundary.Geometry{
			Polygon: &boundary.Polygon{
				Exterior: square(0, 0, 10, 10),
				Holes:    []boundary.Ring{square(4, 4, 6, 6)},
			},
		},
	}

	inRing, err := Contains(b, boundary.Point{Lng: 1, Lat: 1})
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !inRing {
		t.Fatalf("expected point in the ring (outside hole) to be contained")
	}

	inHole, err := Contains(b, boundary.Point{Lng: 5, Lat: 5})
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if inHole {
		t.Fatalf("expected point inside hole to be excluded")
	}
}

func TestContains_MultiPolygon(t *testing.T) {
	b := &boundary.Boundary{
		ID:   "multi",
		Type: boundary.TypeCityLimits,
		Geometry: boundary.Geometry{
			MultiPolygon: &boundary.MultiPolygon{Polygons: []boundary.Polygon{
				{Exterior: square(0, 0, 1, 1)},
				{Exterior: square(10, 10, 11, 11)},
			}},
		},
	}

	in1, _ := Contains(b, boundary.Point{Lng: 0.5, Lat: 0.5})
	in2, _ := Contains(b, boundary.Point{Lng: 10.5, Lat: 10.5})
	inNeither, _ := Contains(b, boundary.Point{Lng: 5, Lat: 5})

	if !in1 || !in2 {
		t.Fatalf("expected both disjoint parts to contain their respective points")
	}
	if inNeither {
		t.Fatalf("expected the gap between parts to be excluded")
	}
}

func TestContains_InvalidGeometry(t *testing.T) {
	b := simpleBoundary(boundary.TypeCounty, boundary.Ring{{Lng: 0, Lat: 0}, {Lng: 1, Lat: 1}})
	_, err := Contains(b, boundary.Point{Lng: 0.5, Lat: 0.5})
	if err == nil {
		t.Fatalf("expected error for degenerate ring")
	}
	var invalid *ErrInvalidGeometry
	if !asInvalidGeometry(err, &invalid) {
		t.Fatalf("expected *ErrInvalidGeometry, got %T: %v", err, err)
	}
}

func asInvalidGeometry(err error, target **ErrInvalidGeometry) bool {
	if e, ok := err.(*ErrInvalidGeometry); ok {
		*target = e
		return true
	}
	return false
}

func TestFindFinest_PicksMostPrecise(t *testing.T) {
	county := simpleBoundary(boundary.TypeCounty, square(0, 0, 10, 10))
	precinct := simpleBoundary(boundary.TypePrecinct, square(4, 4, 6, 6))

	finest, err := FindFinest([]*boundary.Boundary{county, precinct}, boundary.Point{Lng: 5, Lat: 5})
	if err != nil {
		t.Fatalf("FindFinest: %v", err)
	}
	if finest == nil || finest.Type != boundary.TypePrecinct {
		t.Fatalf("expected precinct to win over county, got %+v", finest)
	}
}

func TestFindFinest_NoMatch(t *testing.T) {
	county := simpleBoundary(boundary.TypeCounty, square(0, 0, 10, 10))
	finest, err := FindFinest([]*boundary.Boundary{county}, boundary.Point{Lng: 50, Lat: 50})
	if err != nil {
		t.Fatalf("FindFinest: %v", err)
	}
	if finest != nil {
		t.Fatalf("expected nil when no candidate contains the point")
	}
}
