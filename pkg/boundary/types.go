// Copyright 2025 Shadow Atlas Project
//
// Boundary types and provenance. Pure data: constructors, accessors, and
// the one predicate (IsValid) spec.md §4.2 allows. Equality of two
// Boundary values is by ID; provenance never participates in equality,
// only in conflict resolution (see pkg/validation).

package boundary

import (
	"fmt"
	"time"
)

// Type is the closed set of boundary kinds, ordered finest-first. The
// ordinal is the tie-break the resolver sorts on, so the order of this
// block is load-bearing, not cosmetic.
type Type int

const (
	TypePrecinct Type = iota
	TypeCouncilDistrict
	TypeCityLimits
	TypeCDP
	TypeSchoolDistrictElementary
	TypeSchoolDistrictSecondary
	TypeSchoolDistrictUnified
	TypeCounty
	TypeStateLegislativeLower
	TypeStateLegislativeUpper
	TypeCongressionalDistrict
	TypeState
	TypeCountry
)

var typeNames = map[Type]string{
	TypePrecinct:                 "precinct",
	TypeCouncilDistrict:          "council_district",
	TypeCityLimits:               "city_limits",
	TypeCDP:                      "cdp",
	TypeSchoolDistrictElementary: "school_district_elementary",
	TypeSchoolDistrictSecondary:  "school_district_secondary",
	TypeSchoolDistrictUnified:    "school_district_unified",
	TypeCounty:                   "county",
	TypeStateLegislativeLower:    "state_legislative_lower",
	TypeStateLegislativeUpper:    "state_legislative_upper",
	TypeCongressionalDistrict:    "congressional_district",
	TypeState:                    "state",
	TypeCountry:                  "country",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("boundary.Type(%d)", int(t))
}

// PrecisionRank returns the ordinal used for finest-first sorting. Lower
// is finer. It is currently identical to the enum ordinal but kept as a
// distinct accessor so reordering the enum for readability doesn't
// silently change resolver tie-breaks without a matching review.
func (t Type) PrecisionRank() int { return int(t) }

// AuthorityLevel ranks the trust of a boundary's source; higher wins when
// two sources disagree on the same id (see pkg/validation).
type AuthorityLevel int

const (
	AuthorityUnknown AuthorityLevel = iota
	AuthorityCommunity
	AuthorityMunicipal
	AuthorityStateGIS
	AuthorityFederalTiger
	AuthorityFederalMandate
)

func (a AuthorityLevel) String() string {
	switch a {
	case AuthorityUnknown:
		return "unknown"
	case AuthorityCommunity:
		return "community"
	case AuthorityMunicipal:
		return "municipal"
	case AuthorityStateGIS:
		return "state_gis"
	case AuthorityFederalTiger:
		return "federal_tiger"
	case AuthorityFederalMandate:
		return "federal_mandate"
	default:
		return fmt.Sprintf("boundary.AuthorityLevel(%d)", int(a))
	}
}

// SourceKind identifies the upstream format/protocol a boundary was
// extracted from; pkg/extraction providers each own exactly one.
type SourceKind string

const (
	SourceArcGISFeatureServer SourceKind = "arcgis_feature_server"
	SourceShapefile           SourceKind = "shapefile"
	SourceGeoJSON             SourceKind = "geojson"
	SourceTIGERFTP            SourceKind = "tiger_ftp"
)

// Provenance is attached to every Boundary at extraction time and is
// immutable thereafter; it participates only in conflict resolution, not
// in Boundary equality.
type Provenance struct {
	SourceKind       SourceKind
	SourceURL        string
	RetrievedAt      time.Time
	DataVersion      string
	License          string
	ProcessingSteps  []string
	AuthorityLevel   AuthorityLevel
	LastVerified     time.Time
	RawAttributes    map[string]string // sidecar for fields the typed schema doesn't model
}

// Point is a WGS84 (lng, lat) pair in degrees.
type Point struct {
	Lng float64
	Lat float64
}

// Valid reports whether p falls within WGS84 bounds and is finite.
func (p Point) Valid() bool {
	if p.Lng != p.Lng || p.Lat != p.Lat { // NaN check without importing math
		return false
	}
	return p.Lng >= -180 && p.Lng <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// BBox is an axis-aligned bounding box; Min must be componentwise <= Max.
type BBox struct {
	MinLng, MinLat, MaxLng, MaxLat float64
}

// Contains reports whether p falls within the box, inclusive of edges.
func (b BBox) Contains(p Point) bool {
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Intersects reports whether two bounding boxes overlap at all; this is
// the O(1) pre-filter every pkg/datasource variant must apply before a
// PIP test.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLng <= o.MaxLng && o.MinLng <= b.MaxLng && b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat
}

// Ring is a closed polygon ring: first point must equal last, and at
// least 4 points are required (3 distinct vertices + closure).
type Ring []Point

// Polygon is an exterior ring plus zero or more interior rings (holes).
type Polygon struct {
	Exterior Ring
	Holes    []Ring
}

// MultiPolygon is a set of disjoint (possibly touching) polygons.
type MultiPolygon struct {
	Polygons []Polygon
}

// Geometry is the sum type PIP and validation operate over. Exactly one
// of Polygon or MultiPolygon is set.
type Geometry struct {
	Polygon      *Polygon
	MultiPolygon *MultiPolygon
}

// Boundary is a typed polygonal region with provenance and a validity
// interval. It is exclusively owned by whichever snapshot or shard
// created it; downstream consumers only ever see read-only references
// (arena+index — see pkg/atlasbuild.Leaf and pkg/resolver.Resolution).
type Boundary struct {
	ID              string // stable, GEOID-derived
	Type            Type
	Name            string
	Jurisdiction    string
	JurisdictionFIPS string
	Geometry        Geometry
	BBox            BBox // derived; see RecomputeBBox
	ValidFrom       time.Time
	ValidUntil      *time.Time // nil => indefinitely valid until superseded (open question, spec.md §9)
	Provenance      Provenance
}

// IsValid reports whether the boundary is in effect at instant now. This
// is the only operation spec.md §4.2 allows beyond construction and
// accessors.
func (b *Boundary) IsValid(now time.Time) bool {
	if now.Before(b.ValidFrom) {
		return false
	}
	if b.ValidUntil != nil && !now.Before(*b.ValidUntil) {
		return false
	}
	return true
}

// Equal compares two boundaries by ID only, per spec.md §4.2.
func (b *Boundary) Equal(o *Boundary) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.ID == o.ID
}

// RecomputeBBox derives the bounding box from geometry; used both to
// populate Boundary.BBox at construction and, in pkg/validation, to check
// invariant 1 of spec.md §8 ("recompute_bbox(b.geometry) == b.bbox").
func RecomputeBBox(g Geometry) (BBox, error) {
	var rings []Ring
	switch {
	case g.Polygon != nil:
		rings = append(rings, g.Polygon.Exterior)
		rings = append(rings, g.Polygon.Holes...)
	case g.MultiPolygon != nil:
		for _, p := range g.MultiPolygon.Polygons {
			rings = append(rings, p.Exterior)
			rings = append(rings, p.Holes...)
		}
	default:
		return BBox{}, ErrNoGeometry
	}

	first := true
	var box BBox
	for _, r := range rings {
		for _, pt := range r {
			if first {
				box = BBox{pt.Lng, pt.Lat, pt.Lng, pt.Lat}
				first = false
				continue
			}
			if pt.Lng < box.MinLng {
				box.MinLng = pt.Lng
			}
			if pt.Lng > box.MaxLng {
				box.MaxLng = pt.Lng
			}
			if pt.Lat < box.MinLat {
				box.MinLat = pt.Lat
			}
			if pt.Lat > box.MaxLat {
				box.MaxLat = pt.Lat
			}
		}
	}
	if first {
		return BBox{}, ErrEmptyGeometry
	}
	return box, nil
}
