// Copyright 2025 Shadow Atlas Project
//
// Boundary data source abstraction. Every concrete source (in-memory,
// cached GeoJSON, TIGERweb REST, Postgres/PostGIS) implements the same
// narrow interface so the resolver (pkg/resolver) never needs to know
// which one it's talking to.

package datasource

import (
	"context"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// Source returns candidate boundaries whose bounding box intersects a
// query box. Implementations must apply the bbox pre-filter themselves
// (in SQL, in an index, or in memory) — callers never fall back to a
// full scan.
type Source interface {
	Name() string
	FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, error)
}

// Multi fans a query out across several sources and merges the results,
// letting the caller (pkg/resolver) apply authority-level conflict
// resolution afterward. Errors from individual sources are collected,
// not fatal — a data source outage should degrade coverage, not break
// every lookup.
type Multi struct {
	Sources []Source
}

// SourceError records a single source's failure during a Multi query.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

// FindByBBox queries every configured source and concatenates results;
// a slice of SourceError is returned alongside so callers can decide
// whether partial coverage is acceptable.
func (m *Multi) FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, []*SourceError) {
	var (
		all    []*boundary.Boundary
		errs   []*SourceError
	)
	for _, src := range m.Sources {
		found, err := src.FindByBBox(ctx, box)
		if err != nil {
			errs = append(errs, &SourceError{Source: src.Name(), Err: err})
			continue
		}
		all = append(all, found...)
	}
	return all, errs
}
