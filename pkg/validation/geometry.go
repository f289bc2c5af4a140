// Copyright 2025 Shadow Atlas Project

package validation

import (
	"fmt"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// CheckGeometry runs the geometry checks of spec.md §4.6 over a single
// boundary: invalid coordinates, unclosed rings, self-intersections
// (kinks), bowtie detection, and hole/exterior vertex overlap.
func CheckGeometry(b *boundary.Boundary) []GeometryIssue {
	var issues []GeometryIssue
	var rings []boundary.Ring

	switch {
	case b.Geometry.Polygon != nil:
		rings = append(rings, b.Geometry.Polygon.Exterior)
		rings = append(rings, b.Geometry.Polygon.Holes...)
		issues = append(issues, checkHoleOverlap(b.ID, b.Geometry.Polygon)...)
	case b.Geometry.MultiPolygon != nil:
		for _, p := range b.Geometry.MultiPolygon.Polygons {
			rings = append(rings, p.Exterior)
			rings = append(rings, p.Holes...)
			issues = append(issues, checkHoleOverlap(b.ID, &p)...)
		}
	}

	for _, r := range rings {
		issues = append(issues, checkRing(b.ID, r)...)
	}
	return issues
}

func checkRing(boundaryID string, r boundary.Ring) []GeometryIssue {
	var issues []GeometryIssue

	for _, pt := range r {
		if !pt.Valid() {
			issues = append(issues, GeometryIssue{
				BoundaryID: boundaryID, Kind: "invalid_coordinate",
				Detail: fmt.Sprintf("lng=%f lat=%f", pt.Lng, pt.Lat),
			})
		}
	}

	if len(r) < 4 || r[0] != r[len(r)-1] {
		issues = append(issues, GeometryIssue{
			BoundaryID: boundaryID, Kind: "unclosed_ring",
			Detail: fmt.Sprintf("ring has %d points", len(r)),
		})
		return issues // a malformed ring can't be usefully tested further
	}

	kinks := countSelfIntersections(r)
	switch {
	case kinks == 1:
		issues = append(issues, GeometryIssue{
			BoundaryID: boundaryID, Kind: "bowtie",
			Detail: "exactly one self-intersection on this ring",
		})
	case kinks > 1:
		issues = append(issues, GeometryIssue{
			BoundaryID: boundaryID, Kind: "self_intersection",
			Detail: fmt.Sprintf("%d self-intersections", kinks),
		})
	}
	return issues
}

// countSelfIntersections counts pairs of non-adjacent edges in r that
// cross. This is O(n^2) in ring length, acceptable for the per-boundary
// batch validation runs C6 performs (not the hot resolver path).
func countSelfIntersections(r boundary.Ring) int {
	n := len(r) - 1 // last point duplicates the first (closed ring)
	if n < 3 {
		return 0
	}
	count := 0
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i || (j+1)%n == i || j == (i+1)%n {
				continue // adjacent edges share a vertex, not a crossing
			}
			b1, b2 := r[j], r[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				count++
			}
		}
	}
	return count
}

func segmentsIntersect(p1, p2, p3, p4 boundary.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(a, b, c boundary.Point) float64 {
	return (b.Lng-a.Lng)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lng-a.Lng)
}

// checkHoleOverlap flags any hole ring that shares a vertex with the
// exterior ring, per spec.md's hole-ring overlap check.
func checkHoleOverlap(boundaryID string, p *boundary.Polygon) []GeometryIssue {
	var issues []GeometryIssue
	exterior := make(map[boundary.Point]bool, len(p.Exterior))
	for _, pt := range p.Exterior {
		exterior[pt] = true
	}
	for hi, hole := range p.Holes {
		for _, pt := range hole {
			if exterior[pt] {
				issues = append(issues, GeometryIssue{
					BoundaryID: boundaryID, Kind: "hole_overlap",
					Detail: fmt.Sprintf("hole %d shares a vertex with the exterior ring", hi),
				})
				break
			}
		}
	}
	return issues
}
