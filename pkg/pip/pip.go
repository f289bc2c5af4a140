// Copyright 2025 Shadow Atlas Project
//
// Point-in-polygon engine. A single ray-casting primitive (ringContains)
// everything else composes: hole subtraction, multi-polygon union,
// candidate containment, and finest-match selection.

package pip

import (
	"fmt"
	"sort"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// Tolerance is the degrees-of-longitude/latitude slack applied when a
// test point lies exactly on a ring edge. Floating-point boundary data
// makes exact edge membership unreliable, so points within Tolerance of
// an edge are treated as contained.
const Tolerance = 1e-9

// ErrInvalidGeometry is returned when a ring is degenerate (fewer than 4
// points, i.e. 3 vertices plus closure) and cannot be tested. Unclosed
// rings and repeated vertices are not rejected.
type ErrInvalidGeometry struct {
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	return fmt.Sprintf("pip: invalid geometry: %s", e.Reason)
}

// ringContains implements the standard even-odd ray-casting test for a
// single ring, with a tolerance band for near-edge points. It treats the
// ring as if closed (callers are expected to pass closed rings, but the
// loop wraps regardless).
func ringContains(r boundary.Ring, p boundary.Point) (bool, error) {
	n := len(r)
	if n < 4 {
		return false, &ErrInvalidGeometry{Reason: fmt.Sprintf("ring has %d points, need at least 4 (3 distinct + closure)", n)}
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := r[i].Lng, r[i].Lat
		xj, yj := r[j].Lng, r[j].Lat

		if onSegment(r[j], r[i], p) {
			return true, nil
		}

		// Half-open y-interval: one endpoint counts, the other doesn't, so a
		// ray passing exactly through a shared vertex of two edges is never
		// double-counted.
		yCrosses := (yi > p.Lat) != (yj > p.Lat)
		if yCrosses {
			xCross := xj + (p.Lat-yj)/(yi-yj)*(xi-xj)
			if p.Lng < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside, nil
}

// onSegment reports whether p lies on segment a-b within Tolerance,
// using the cross-product-near-zero plus bounding-box test.
func onSegment(a, b, p boundary.Point) bool {
	cross := (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
	if abs(cross) > Tolerance {
		return false
	}
	minLng, maxLng := minMax(a.Lng, b.Lng)
	minLat, maxLat := minMax(a.Lat, b.Lat)
	return p.Lng >= minLng-Tolerance && p.Lng <= maxLng+Tolerance &&
		p.Lat >= minLat-Tolerance && p.Lat <= maxLat+Tolerance
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func minMax(a, b float64) (float64, float64) {
	if a < b {
		return a, b
	}
	return b, a
}

// polygonContains reports whether p is in the exterior ring and in none
// of the holes.
func polygonContains(poly boundary.Polygon, p boundary.Point) (bool, error) {
	in, err := ringContains(poly.Exterior, p)
	if err != nil {
		return false, err
	}
	if !in {
		return false, nil
	}
	for _, hole := range poly.Holes {
		inHole, err := ringContains(hole, p)
		if err != nil {
			return false, err
		}
		if inHole {
			return false, nil
		}
	}
	return true, nil
}

// Contains reports whether point p lies inside b's geometry: the union
// of its polygons for a MultiPolygon, minus holes.
func Contains(b *boundary.Boundary, p boundary.Point) (bool, error) {
	g := b.Geometry
	switch {
	case g.Polygon != nil:
		return polygonContains(*g.Polygon, p)
	case g.MultiPolygon != nil:
		for _, poly := range g.MultiPolygon.Polygons {
			in, err := polygonContains(poly, p)
			if err != nil {
				return false, err
			}
			if in {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &ErrInvalidGeometry{Reason: "boundary has neither polygon nor multipolygon"}
	}
}

// FindContaining returns every boundary in candidates whose geometry
// contains p. Candidates should already be bbox-prefiltered by the
// caller (pkg/datasource); this function does not re-check bbox.
func FindContaining(candidates []*boundary.Boundary, p boundary.Point) ([]*boundary.Boundary, error) {
	var out []*boundary.Boundary
	for _, c := range candidates {
		in, err := Contains(c, p)
		if err != nil {
			return nil, fmt.Errorf("pip: testing boundary %s: %w", c.ID, err)
		}
		if in {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindFinest returns the containing boundary, of any type, with the
// highest PrecisionRank (lowest ordinal, i.e. the finest-grained match)
// among those that contain p. It returns nil, nil when no candidate
// contains p.
func FindFinest(candidates []*boundary.Boundary, p boundary.Point) (*boundary.Boundary, error) {
	matches, err := FindContaining(candidates, p)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Type.PrecisionRank() < matches[j].Type.PrecisionRank()
	})
	return matches[0], nil
}
