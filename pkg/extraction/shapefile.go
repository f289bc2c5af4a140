// Copyright 2025 Shadow Atlas Project
//
// Minimal ESRI shapefile (.shp) reader for polygon shape type (5),
// covering exactly what statewide boundary extracts need. No pack
// example imports a shapefile library (see DESIGN.md), so this parses
// the documented binary format directly against the stdlib.

package extraction

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

const shapeTypePolygon = 5

// ShapefileProvider extracts boundaries from a .shp file already
// projected to EPSG:4326. ProjectFunc, if set, is applied to every
// coordinate pair read from the file — callers supply it when the
// source .shp uses a different projection (e.g. a state plane system)
// and needs reprojecting before PIP/Merkle leaf encoding can use it.
type ShapefileProvider struct {
	Path          string
	BoundaryType  boundary.Type
	Authority     boundary.AuthorityLevel
	ExpectedCount int
	IDs           []string // GEOID per record, in file order (shapefiles carry no such field themselves; paired .dbf parsing is out of scope)
	ProjectFunc   func(x, y float64) (lng, lat float64)
}

// SourceKind implements Provider.
func (p *ShapefileProvider) SourceKind() boundary.SourceKind { return boundary.SourceShapefile }

// Extract implements Provider.
func (p *ShapefileProvider) Extract(ctx context.Context, state, layer string) (*Result, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("extraction: read %s: %w", p.Path, err)
	}

	polys, err := parseShapefilePolygons(raw)
	if err != nil {
		return nil, fmt.Errorf("extraction: parse %s: %w", p.Path, err)
	}

	project := p.ProjectFunc
	if project == nil {
		project = func(x, y float64) (float64, float64) { return x, y }
	}

	retrievedAt := time.Now()
	var all []*boundary.Boundary
	for i, poly := range polys {
		for ri := range poly.Exterior {
			poly.Exterior[ri].Lng, poly.Exterior[ri].Lat = project(poly.Exterior[ri].Lng, poly.Exterior[ri].Lat)
		}
		for hi := range poly.Holes {
			for ri := range poly.Holes[hi] {
				poly.Holes[hi][ri].Lng, poly.Holes[hi][ri].Lat = project(poly.Holes[hi][ri].Lng, poly.Holes[hi][ri].Lat)
			}
		}

		geom := boundary.Geometry{Polygon: &poly}
		bbox, err := boundary.RecomputeBBox(geom)
		if err != nil {
			continue
		}
		id := fmt.Sprintf("record-%d", i)
		if i < len(p.IDs) {
			id = p.IDs[i]
		}
		all = append(all, &boundary.Boundary{
			ID:               "shapefile:" + id,
			Type:             p.BoundaryType,
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

// parseShapefilePolygons reads every polygon-type record from an .shp
// byte buffer, following the ESRI Shapefile Technical Description:
// a 100-byte file header, then a sequence of (record header, record
// content) pairs. Only shape type 5 (Polygon) is supported; other shape
// types are rejected since this provider is only ever wired to polygon
// layers.
func parseShapefilePolygons(data []byte) ([]boundary.Polygon, error) {
	if len(data) < 100 {
		return nil, fmt.Errorf("file too short to contain a shapefile header")
	}
	shapeType := binary.LittleEndian.Uint32(data[32:36])
	if shapeType != shapeTypePolygon {
		return nil, fmt.Errorf("unsupported shape type %d (only Polygon/5 is supported)", shapeType)
	}

	var polys []boundary.Polygon
	offset := 100
	for offset+8 <= len(data) {
		// Record header: 4-byte record number (big-endian), 4-byte content
		// length in 16-bit words (big-endian).
		contentWords := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		contentLen := int(contentWords) * 2
		recordStart := offset + 8
		recordEnd := recordStart + contentLen
		if recordEnd > len(data) {
			break
		}

		poly, err := parsePolygonRecord(data[recordStart:recordEnd])
		if err != nil {
			return nil, err
		}
		polys = append(polys, poly)

		offset = recordEnd
	}
	return polys, nil
}

// parsePolygonRecord parses one Polygon record body: shape type (4
// bytes, little-endian), bounding box (32 bytes), num parts (4),
// num points (4), part index array, then the flat point array.
func parsePolygonRecord(b []byte) (boundary.Polygon, error) {
	if len(b) < 44 {
		return boundary.Polygon{}, fmt.Errorf("polygon record too short")
	}
	numParts := int(binary.LittleEndian.Uint32(b[36:40]))
	numPoints := int(binary.LittleEndian.Uint32(b[40:44]))

	partsStart := 44
	partsEnd := partsStart + numParts*4
	pointsStart := partsEnd
	pointsEnd := pointsStart + numPoints*16
	if pointsEnd > len(b) {
		return boundary.Polygon{}, fmt.Errorf("polygon record truncated")
	}

	parts := make([]int, numParts)
	for i := 0; i < numParts; i++ {
		parts[i] = int(binary.LittleEndian.Uint32(b[partsStart+i*4 : partsStart+i*4+4]))
	}

	points := make([]boundary.Point, numPoints)
	for i := 0; i < numPoints; i++ {
		off := pointsStart + i*16
		x := math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
		y := math.Float64frombits(binary.LittleEndian.Uint64(b[off+8 : off+16]))
		points[i] = boundary.Point{Lng: x, Lat: y}
	}

	var rings []boundary.Ring
	for i, start := range parts {
		end := numPoints
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		rings = append(rings, boundary.Ring(points[start:end]))
	}
	if len(rings) == 0 {
		return boundary.Polygon{}, fmt.Errorf("polygon record has no rings")
	}
	return boundary.Polygon{Exterior: rings[0], Holes: rings[1:]}, nil
}
