// Copyright 2025 Shadow Atlas Project
//
// Boundary repository backed by Postgres/PostGIS. Grounded on
// SoySergo-location_microservice's boundaryRepository (ST_Intersects /
// ST_Transform usage pattern), adapted to the shadowatlas/pkg/boundary
// domain types instead of that project's domain.AdminBoundary.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// BoundaryRepository persists and queries Boundary records in Postgres.
type BoundaryRepository struct {
	client *Client
}

// NewBoundaryRepository returns a repository bound to client.
func NewBoundaryRepository(client *Client) *BoundaryRepository {
	return &BoundaryRepository{client: client}
}

// Upsert inserts or replaces a boundary record by ID.
func (r *BoundaryRepository) Upsert(ctx context.Context, b *boundary.Boundary) error {
	wkt, err := toMultiPolygonWKT(b.Geometry)
	if err != nil {
		return fmt.Errorf("database: boundary %s geometry: %w", b.ID, err)
	}

	var validUntil interface{}
	if b.ValidUntil != nil {
		validUntil = *b.ValidUntil
	}

	_, err = r.client.ExecContext(ctx, `
		INSERT INTO boundaries (
			id, boundary_type, name, jurisdiction, jurisdiction_fips, geom,
			bbox_min_lng, bbox_min_lat, bbox_max_lng, bbox_max_lat,
			valid_from, valid_until,
			source_kind, source_url, authority_level, data_version,
			retrieved_at, last_verified
		) VALUES (
			$1, $2, $3, $4, $5, ST_GeomFromText($6, 4326),
			$7, $8, $9, $10,
			$11, $12,
			$13, $14, $15, $16,
			$17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			boundary_type = EXCLUDED.boundary_type,
			name = EXCLUDED.name,
			jurisdiction = EXCLUDED.jurisdiction,
			jurisdiction_fips = EXCLUDED.jurisdiction_fips,
			geom = EXCLUDED.geom,
			bbox_min_lng = EXCLUDED.bbox_min_lng,
			bbox_min_lat = EXCLUDED.bbox_min_lat,
			bbox_max_lng = EXCLUDED.bbox_max_lng,
			bbox_max_lat = EXCLUDED.bbox_max_lat,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			source_kind = EXCLUDED.source_kind,
			source_url = EXCLUDED.source_url,
			authority_level = EXCLUDED.authority_level,
			data_version = EXCLUDED.data_version,
			retrieved_at = EXCLUDED.retrieved_at,
			last_verified = EXCLUDED.last_verified
	`,
		b.ID, int(b.Type), b.Name, b.Jurisdiction, b.JurisdictionFIPS, wkt,
		b.BBox.MinLng, b.BBox.MinLat, b.BBox.MaxLng, b.BBox.MaxLat,
		b.ValidFrom, validUntil,
		string(b.Provenance.SourceKind), b.Provenance.SourceURL, int(b.Provenance.AuthorityLevel), b.Provenance.DataVersion,
		b.Provenance.RetrievedAt, b.Provenance.LastVerified,
	)
	if err != nil {
		return fmt.Errorf("database: upsert boundary %s: %w", b.ID, err)
	}
	return nil
}

// GetByID fetches a single boundary by its stable ID.
func (r *BoundaryRepository) GetByID(ctx context.Context, id string) (*boundary.Boundary, error) {
	row := r.client.QueryRowContext(ctx, `
		SELECT id, boundary_type, name, jurisdiction, jurisdiction_fips,
		       ST_AsText(geom), bbox_min_lng, bbox_min_lat, bbox_max_lng, bbox_max_lat,
		       valid_from, valid_until,
		       source_kind, source_url, authority_level, data_version, retrieved_at, last_verified
		FROM boundaries WHERE id = $1
	`, id)
	b, err := scanBoundaryRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBoundaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database: get boundary %s: %w", id, err)
	}
	return b, nil
}

// FindByBBox returns every boundary whose bounding box intersects box,
// using the GiST index on geom rather than the plain bbox columns so
// Postgres can use the spatial index directly.
func (r *BoundaryRepository) FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, error) {
	rows, err := r.client.QueryContext(ctx, `
		SELECT id, boundary_type, name, jurisdiction, jurisdiction_fips,
		       ST_AsText(geom), bbox_min_lng, bbox_min_lat, bbox_max_lng, bbox_max_lat,
		       valid_from, valid_until,
		       source_kind, source_url, authority_level, data_version, retrieved_at, last_verified
		FROM boundaries
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
	`, box.MinLng, box.MinLat, box.MaxLng, box.MaxLat)
	if err != nil {
		return nil, fmt.Errorf("database: find boundaries by bbox: %w", err)
	}
	defer rows.Close()

	var out []*boundary.Boundary
	for rows.Next() {
		b, err := scanBoundaryRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("database: scan boundary row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBoundaryRow(scan func(dest ...interface{}) error) (*boundary.Boundary, error) {
	var (
		b              boundary.Boundary
		boundaryType   int
		authorityLevel int
		sourceKind     string
		geomWKT        string
		validUntil     sql.NullTime
	)
	err := scan(
		&b.ID, &boundaryType, &b.Name, &b.Jurisdiction, &b.JurisdictionFIPS,
		&geomWKT, &b.BBox.MinLng, &b.BBox.MinLat, &b.BBox.MaxLng, &b.BBox.MaxLat,
		&b.ValidFrom, &validUntil,
		&sourceKind, &b.Provenance.SourceURL, &authorityLevel, &b.Provenance.DataVersion,
		&b.Provenance.RetrievedAt, &b.Provenance.LastVerified,
	)
	if err != nil {
		return nil, err
	}
	b.Type = boundary.Type(boundaryType)
	b.Provenance.AuthorityLevel = boundary.AuthorityLevel(authorityLevel)
	b.Provenance.SourceKind = boundary.SourceKind(sourceKind)
	if validUntil.Valid {
		t := validUntil.Time
		b.ValidUntil = &t
	}
	geom, err := fromMultiPolygonWKT(geomWKT)
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	b.Geometry = geom
	return &b, nil
}

// toMultiPolygonWKT renders a Geometry as WKT MULTIPOLYGON(...) text, the
// only format ST_GeomFromText needs.
func toMultiPolygonWKT(g boundary.Geometry) (string, error) {
	var polys []boundary.Polygon
	switch {
	case g.Polygon != nil:
		polys = []boundary.Polygon{*g.Polygon}
	case g.MultiPolygon != nil:
		polys = g.MultiPolygon.Polygons
	default:
		return "", fmt.Errorf("geometry has neither polygon nor multipolygon")
	}

	s := "MULTIPOLYGON("
	for i, p := range polys {
		if i > 0 {
			s += ","
		}
		s += "(" + ringWKT(p.Exterior)
		for _, h := range p.Holes {
			s += "," + ringWKT(h)
		}
		s += ")"
	}
	s += ")"
	return s, nil
}

func ringWKT(r boundary.Ring) string {
	s := "("
	for i, pt := range r {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g %g", pt.Lng, pt.Lat)
	}
	return s + ")"
}

// fromMultiPolygonWKT is a minimal WKT MULTIPOLYGON parser sufficient for
// what ST_AsText emits (no nested SRID, no Z/M dimensions). It is not a
// general WKT parser.
func fromMultiPolygonWKT(wkt string) (boundary.Geometry, error) {
	mp := &boundary.MultiPolygon{}
	body, ok := stripWrapper(wkt, "MULTIPOLYGON")
	if !ok {
		return boundary.Geometry{}, fmt.Errorf("not a MULTIPOLYGON: %q", wkt)
	}
	for _, polyText := range splitTopLevel(body) {
		rings := splitTopLevel(stripOuterParens(polyText))
		if len(rings) == 0 {
			continue
		}
		poly := boundary.Polygon{Exterior: parseRing(rings[0])}
		for _, h := range rings[1:] {
			poly.Holes = append(poly.Holes, parseRing(h))
		}
		mp.Polygons = append(mp.Polygons, poly)
	}
	return boundary.Geometry{MultiPolygon: mp}, nil
}

func stripWrapper(s, keyword string) (string, bool) {
	if len(s) < len(keyword) || s[:len(keyword)] != keyword {
		return "", false
	}
	return stripOuterParens(s[len(keyword):]), true
}

func stripOuterParens(s string) string {
	s = trimSpace(s)
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && s[i] == ' ' {
		i++
	}
	for j > i && s[j-1] == ' ' {
		j--
	}
	return s[i:j]
}

// splitTopLevel splits a comma list respecting parenthesis nesting.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	for i := range out {
		out[i] = trimSpace(out[i])
	}
	return out
}

func parseRing(s string) boundary.Ring {
	s = stripOuterParens(s)
	var ring boundary.Ring
	for _, pair := range splitTopLevel(s) {
		var lng, lat float64
		fmt.Sscanf(pair, "%g %g", &lng, &lat)
		ring = append(ring, boundary.Point{Lng: lng, Lat: lat})
	}
	return ring
}
