// Copyright 2025 Shadow Atlas Project
//
// Validation pipeline (C6): registry count, GEOID format, geometry, and
// cross-source checks over a batch or snapshot, emitting a typed,
// serializable report.

package validation

import "time"

// Severity classifies how far a registry count mismatch is from
// expected.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SeverityForDelta implements spec.md §4.6's thresholds: |delta| of 1 is
// info, 2 is warning, 3 or more is critical.
func SeverityForDelta(delta int) Severity {
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta <= 1:
		return SeverityInfo
	case delta == 2:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// DiagnosticCause is the classifier's verdict when a count disagrees
// with the cross-source authority.
type DiagnosticCause string

const (
	CauseZZWater          DiagnosticCause = "zz_water_uninhabited"
	CauseMultiMemberSeats DiagnosticCause = "multi_member_seats"
	CauseRedistricting    DiagnosticCause = "redistricting_in_progress"
	CauseStaleData        DiagnosticCause = "stale_data"
	CauseDataQuality      DiagnosticCause = "data_quality_issue"
	CauseUnknown          DiagnosticCause = "unknown"
)

// CountMismatch records a registry-expected-vs-actual discrepancy.
type CountMismatch struct {
	State    string
	Layer    string
	Expected int
	Actual   int
	Delta    int
	Severity Severity
}

// GeoIDFormatIssue records a GEOID that fails the state-FIPS-prefix or
// minimum-length check.
type GeoIDFormatIssue struct {
	GEOID      string
	Reason     string
}

// GeometryIssue records a single detected geometry defect.
type GeometryIssue struct {
	BoundaryID string
	Kind       string // "invalid_coordinate" | "unclosed_ring" | "self_intersection" | "bowtie" | "hole_overlap"
	Detail     string
}

// CrossSourceDiscrepancy records a GEOID present in one source and
// absent from the other.
type CrossSourceDiscrepancy struct {
	GEOID string
	Kind  string // "missing" | "extra"
	Cause DiagnosticCause
}

// Report is the typed output of one validation run.
type Report struct {
	JobID                   string
	State                   string
	Layer                   string
	CountMismatches         []CountMismatch
	GeoIDIssues             []GeoIDFormatIssue
	GeometryIssues          []GeometryIssue
	CrossSourceDiscrepancies []CrossSourceDiscrepancy
	Passed                  bool
	Confidence              float64
	StartedAt               time.Time
	FinishedAt              time.Time
}

// Duration returns the wall-clock time the validation run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// computePassed reports whether the run should be considered passing:
// no critical count mismatches and no geometry issues at all.
func computePassed(r *Report) bool {
	if len(r.GeometryIssues) > 0 {
		return false
	}
	for _, m := range r.CountMismatches {
		if m.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// computeConfidence derives a [0,1] confidence score from the issue
// counts found; every issue category pulls the score down by a fixed
// weight, floored at zero.
func computeConfidence(r *Report) float64 {
	score := 1.0
	score -= 0.05 * float64(len(r.GeoIDIssues))
	score -= 0.1 * float64(len(r.GeometryIssues))
	for _, m := range r.CountMismatches {
		switch m.Severity {
		case SeverityWarning:
			score -= 0.05
		case SeverityCritical:
			score -= 0.2
		}
	}
	score -= 0.02 * float64(len(r.CrossSourceDiscrepancies))
	if score < 0 {
		score = 0
	}
	return score
}
