// Copyright 2025 Shadow Atlas Project

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// GeoJSONProvider extracts boundaries from a local GeoJSON
// FeatureCollection file, already assumed EPSG:4326 (GeoJSON's one
// legal CRS per RFC 7946).
type GeoJSONProvider struct {
	Path          string
	BoundaryType  boundary.Type
	Authority     boundary.AuthorityLevel
	ExpectedCount int
}

// SourceKind implements Provider.
func (p *GeoJSONProvider) SourceKind() boundary.SourceKind { return boundary.SourceGeoJSON }

type geoJSONFC struct {
	Features []struct {
		Properties map[string]interface{} `json:"properties"`
		Geometry   struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Extract implements Provider.
func (p *GeoJSONProvider) Extract(ctx context.Context, state, layer string) (*Result, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("extraction: read %s: %w", p.Path, err)
	}

	var fc geoJSONFC
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("extraction: decode %s: %w", p.Path, err)
	}

	retrievedAt := time.Now()
	var all []*boundary.Boundary
	for _, f := range fc.Features {
		id, _ := f.Properties["GEOID"].(string)
		name, _ := f.Properties["NAME"].(string)
		if id == "" {
			continue
		}
		geom, err := decodeGeometry(f.Geometry.Type, f.Geometry.Coordinates)
		if err != nil {
			continue
		}
		bbox, err := boundary.RecomputeBBox(geom)
		if err != nil {
			continue
		}
		all = append(all, &boundary.Boundary{
			ID:               "geojson:" + id,
			Type:             p.BoundaryType,
			Name:             name,
			JurisdictionFIPS: id,
			Geometry:         geom,
			BBox:             bbox,
		})
	}
	attachProvenance(all, p.SourceKind(), p.Path, retrievedAt, p.Authority)

	return &Result{
		State: state, Layer: layer,
		Boundaries: all, FeatureCount: len(all), ExpectedCount: p.ExpectedCount, Success: true,
	}, nil
}

func decodeGeometry(kind string, raw json.RawMessage) (boundary.Geometry, error) {
	switch kind {
	case "Polygon":
		var coords [][][2]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return boundary.Geometry{}, err
		}
		return boundary.Geometry{Polygon: polygonFromRings(coords)}, nil
	case "MultiPolygon":
		var coords [][][][2]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return boundary.Geometry{}, err
		}
		mp := &boundary.MultiPolygon{}
		for _, polyCoords := range coords {
			mp.Polygons = append(mp.Polygons, *polygonFromRings(polyCoords))
		}
		return boundary.Geometry{MultiPolygon: mp}, nil
	default:
		return boundary.Geometry{}, fmt.Errorf("unsupported geometry type %q", kind)
	}
}

func polygonFromRings(coords [][][2]float64) *boundary.Polygon {
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
