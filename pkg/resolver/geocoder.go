// Copyright 2025 Shadow Atlas Project

package resolver

import (
	"context"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// GeocodeResult is the output of a geocoder call: a point plus the
// geocoder's own confidence in that point, 0-100.
type GeocodeResult struct {
	Point      boundary.Point
	Confidence float64
}

// Geocoder is an interface only, per spec.md §4.5 — no geocoding service
// is implemented in this module. Callers inject a concrete
// implementation (a third-party API client, a local gazetteer, a test
// stub) at AtlasRuntime construction time.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
}
