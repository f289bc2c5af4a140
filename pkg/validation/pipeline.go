// Copyright 2025 Shadow Atlas Project

package validation

import (
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// BatchInput is everything one validation run needs: the boundaries
// just extracted/ingested, the pinned registry entry for their (state,
// layer), and the authority GEOID set to cross-check against (nil skips
// the cross-source check entirely, e.g. for layers with no TIGERweb
// analog).
type BatchInput struct {
	JobID     string
	Boundaries []*boundary.Boundary
	Registry  RegistryEntry
	Authority map[string]bool // nil => skip cross-source check
	Classify  CauseClassifier // nil => DefaultClassifier
}

// Run executes every check of spec.md §4.6 over input and returns a
// fully populated Report.
func Run(input BatchInput, now func() time.Time) *Report {
	started := now()
	report := &Report{
		JobID: input.JobID,
		State: input.Registry.State,
		Layer: input.Registry.Layer,
		StartedAt: started,
	}

	if mismatch := CheckCount(input.Registry, len(input.Boundaries)); mismatch != nil {
		report.CountMismatches = append(report.CountMismatches, *mismatch)
	}

	local := make(map[string]bool, len(input.Boundaries))
	for _, b := range input.Boundaries {
		local[b.JurisdictionFIPS] = true
		if issue := CheckGEOIDFormat(input.Registry, b.JurisdictionFIPS); issue != nil {
			report.GeoIDIssues = append(report.GeoIDIssues, *issue)
		}
		report.GeometryIssues = append(report.GeometryIssues, CheckGeometry(b)...)
	}

	if input.Authority != nil {
		classify := input.Classify
		if classify == nil {
			classify = DefaultClassifier
		}
		report.CrossSourceDiscrepancies = CrossSourceCompare(local, input.Authority, classify)
	}

	report.FinishedAt = now()
	report.Passed = computePassed(report)
	report.Confidence = computeConfidence(report)
	return report
}
