// Copyright 2025 Shadow Atlas Project
//
// Manifest assembly (C12 step 5): cross-references the validated
// boundary set against the pinned registry to produce the snapshot's
// integrity summary.

package atlasbuild

import (
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/validation"
)

// CountDiscrepancy records one (state, layer) pair whose actual
// boundary count diverged from the registry's pinned expectation.
type CountDiscrepancy struct {
	State    string
	Layer    string
	Expected int
	Actual   int
	Delta    int
	Severity validation.Severity
}

// Manifest is the snapshot's integrity summary: expected vs. actual
// counts, discrepancies, an authority-level breakdown, the version
// epoch, and the hash-constants digest that pins the build's Poseidon
// domain-separation scheme.
type Manifest struct {
	ExpectedCounts       map[string]map[string]int // state -> layer -> expected
	ActualCounts         map[string]map[string]int // state -> layer -> actual
	Discrepancies        []CountDiscrepancy
	AuthoritySummary     map[string]int // boundary.AuthorityLevel.String() -> count
	VersionEpoch         uint64
	HashConstantsDigest  string
	BuildTimestamp       time.Time
}

// BuildManifest cross-references boundaries against registry, grouping
// actual counts by (JurisdictionFIPS[:2], Type.String()) to match the
// registry's (StateFIPS, Layer) keying.
func BuildManifest(boundaries []*boundary.Boundary, registry []validation.RegistryEntry, versionEpoch uint64, hashConstantsDigest string, buildTime time.Time) Manifest {
	actual := make(map[string]map[string]int)
	authority := make(map[string]int)

	for _, b := range boundaries {
		stateFIPS := b.JurisdictionFIPS
		if len(stateFIPS) > 2 {
			stateFIPS = stateFIPS[:2]
		}
		layer := b.Type.String()
		if actual[stateFIPS] == nil {
			actual[stateFIPS] = make(map[string]int)
		}
		actual[stateFIPS][layer]++
		authority[b.Provenance.AuthorityLevel.String()]++
	}

	expected := make(map[string]map[string]int)
	var discrepancies []CountDiscrepancy
	for _, entry := range registry {
		if expected[entry.StateFIPS] == nil {
			expected[entry.StateFIPS] = make(map[string]int)
		}
		expected[entry.StateFIPS][entry.Layer] = entry.ExpectedCount

		actualCount := actual[entry.StateFIPS][entry.Layer]
		if mismatch := validation.CheckCount(entry, actualCount); mismatch != nil {
			discrepancies = append(discrepancies, CountDiscrepancy{
				State:    entry.State,
				Layer:    entry.Layer,
				Expected: mismatch.Expected,
				Actual:   mismatch.Actual,
				Delta:    mismatch.Delta,
				Severity: mismatch.Severity,
			})
		}
	}

	return Manifest{
		ExpectedCounts:      expected,
		ActualCounts:        actual,
		Discrepancies:       discrepancies,
		AuthoritySummary:    authority,
		VersionEpoch:        versionEpoch,
		HashConstantsDigest: hashConstantsDigest,
		BuildTimestamp:      buildTime,
	}
}
