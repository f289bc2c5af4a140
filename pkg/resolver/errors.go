// Copyright 2025 Shadow Atlas Project

package resolver

import "errors"

// Sentinel errors surfaced by Resolve, each signaling a distinct
// user-visible failure per spec.md §4.5.
var (
	// ErrGeocodeFailed means the address could not be geocoded at all.
	ErrGeocodeFailed = errors.New("resolver: address not geocodable")

	// ErrLowConfidence means geocoding succeeded but below the configured
	// confidence floor; surfaced the same as ErrGeocodeFailed to the user,
	// but tagged distinctly for provenance/manual review.
	ErrLowConfidence = errors.New("resolver: geocode confidence below floor")

	// ErrNoBoundaries means no candidate boundary contained the resolved
	// point.
	ErrNoBoundaries = errors.New("resolver: no containing boundary found")

	// ErrDataSourceError wraps an underlying data source failure.
	ErrDataSourceError = errors.New("resolver: data source error")
)
