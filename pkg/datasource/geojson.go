// Copyright 2025 Shadow Atlas Project
//
// Cached GeoJSON source: loads a FeatureCollection from disk once and
// serves bbox queries from the in-memory index thereafter. Used for
// statewide extracts pulled down by pkg/extraction and for fixtures that
// don't warrant a live TIGERweb round trip.

package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// GeoJSON lazily loads path on first query and caches the parsed result.
type GeoJSON struct {
	path         string
	boundaryType boundary.Type
	authority    boundary.AuthorityLevel

	mu     sync.Mutex
	loaded bool
	inner  *InMemory
}

// NewGeoJSON returns a source backed by a local GeoJSON file.
func NewGeoJSON(path string, bt boundary.Type, authority boundary.AuthorityLevel) *GeoJSON {
	return &GeoJSON{path: path, boundaryType: bt, authority: authority}
}

// Name implements Source.
func (g *GeoJSON) Name() string { return "geojson:" + g.path }

type geoJSONFeatureCollection struct {
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Properties map[string]interface{} `json:"properties"`
	Geometry   struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// FindByBBox loads the file on first call (guarded by mu) and then
// delegates to the in-memory index for every subsequent call.
func (g *GeoJSON) FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}
	return g.inner.FindByBBox(ctx, box)
}

func (g *GeoJSON) ensureLoaded() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded {
		return nil
	}

	raw, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("geojson: read %s: %w", g.path, err)
	}

	var fc geoJSONFeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("geojson: decode %s: %w", g.path, err)
	}

	inner := NewInMemory(g.Name(), nil)
	for _, f := range fc.Features {
		b, err := g.toBoundary(f)
		if err != nil {
			continue
		}
		inner.Add(b)
	}
	g.inner = inner
	g.loaded = true
	return nil
}

func (g *GeoJSON) toBoundary(f geoJSONFeature) (*boundary.Boundary, error) {
	id, _ := f.Properties["GEOID"].(string)
	name, _ := f.Properties["NAME"].(string)
	if id == "" {
		return nil, fmt.Errorf("geojson: feature missing GEOID")
	}

	geom, err := decodeGeoJSONGeometry(f.Geometry.Type, f.Geometry.Coordinates)
	if err != nil {
		return nil, err
	}
	bbox, err := boundary.RecomputeBBox(geom)
	if err != nil {
		return nil, err
	}

	return &boundary.Boundary{
		ID:               "geojson:" + id,
		Type:             g.boundaryType,
		Name:             name,
		JurisdictionFIPS: id,
		Geometry:         geom,
		BBox:             bbox,
		Provenance: boundary.Provenance{
			SourceKind:     boundary.SourceGeoJSON,
			SourceURL:      g.path,
			AuthorityLevel: g.authority,
		},
	}, nil
}

func decodeGeoJSONGeometry(kind string, raw json.RawMessage) (boundary.Geometry, error) {
	switch kind {
	case "Polygon":
		var coords [][][2]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return boundary.Geometry{}, fmt.Errorf("geojson: decode polygon: %w", err)
		}
		return boundary.Geometry{Polygon: polygonFromCoords(coords)}, nil
	case "MultiPolygon":
		var coords [][][][2]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return boundary.Geometry{}, fmt.Errorf("geojson: decode multipolygon: %w", err)
		}
		mp := &boundary.MultiPolygon{}
		for _, polyCoords := range coords {
			mp.Polygons = append(mp.Polygons, *polygonFromCoords(polyCoords))
		}
		return boundary.Geometry{MultiPolygon: mp}, nil
	default:
		return boundary.Geometry{}, fmt.Errorf("geojson: unsupported geometry type %q", kind)
	}
}

func polygonFromCoords(coords [][][2]float64) *boundary.Polygon {
	poly := &boundary.Polygon{}
	for i, ring := range coords {
		r := make(boundary.Ring, 0, len(ring))
		for _, pt := range ring {
			r = append(r, boundary.Point{Lng: pt[0], Lat: pt[1]})
		}
		if i == 0 {
			poly.Exterior = r
		} else {
			poly.Holes = append(poly.Holes, r)
		}
	}
	return poly
}
