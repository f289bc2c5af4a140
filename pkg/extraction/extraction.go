// Copyright 2025 Shadow Atlas Project
//
// Extraction provider (C7): per-portal adapters translating an upstream
// format into validated Boundary records, with provenance attached.

package extraction

import (
	"context"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// Result is one provider run's outcome for a single (state, layer) pair.
type Result struct {
	State         string
	Layer         string
	Boundaries    []*boundary.Boundary
	FeatureCount  int
	ExpectedCount int
	Success       bool
	Err           error
}

// Provider extracts boundaries for a (state, layer) pair from one
// upstream portal format.
type Provider interface {
	SourceKind() boundary.SourceKind
	Extract(ctx context.Context, state, layer string) (*Result, error)
}

// attachProvenance stamps every boundary in bs with shared provenance
// fields (source kind and URL, retrieval and verification time, and the
// caller's per-layer AuthorityLevel), leaving other provenance fields
// such as RawAttributes alone.
func attachProvenance(bs []*boundary.Boundary, kind boundary.SourceKind, url string, retrievedAt time.Time, authority boundary.AuthorityLevel) {
	for _, b := range bs {
		b.Provenance.SourceKind = kind
		b.Provenance.SourceURL = url
		b.Provenance.RetrievedAt = retrievedAt
		b.Provenance.LastVerified = retrievedAt
		b.Provenance.AuthorityLevel = authority
	}
}
