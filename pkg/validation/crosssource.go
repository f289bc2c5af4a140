// Copyright 2025 Shadow Atlas Project

package validation

import "strings"

// CrossSourceCompare diffs a local GEOID set against a federal authority
// (TIGERweb) set for the same (state, layer), producing missing/extra
// discrepancies classified by CauseClassifier.
func CrossSourceCompare(local, authority map[string]bool, classify CauseClassifier) []CrossSourceDiscrepancy {
	var out []CrossSourceDiscrepancy
	for geoid := range authority {
		if !local[geoid] {
			out = append(out, CrossSourceDiscrepancy{GEOID: geoid, Kind: "missing", Cause: classify(geoid, "missing")})
		}
	}
	for geoid := range local {
		if !authority[geoid] {
			out = append(out, CrossSourceDiscrepancy{GEOID: geoid, Kind: "extra", Cause: classify(geoid, "extra")})
		}
	}
	return out
}

// CauseClassifier decides the DiagnosticCause for one discrepant GEOID.
type CauseClassifier func(geoid, kind string) DiagnosticCause

// DefaultClassifier implements the heuristics of spec.md §4.6: ZZ
// water/uninhabited suffix, duplicate-district multi-member-seat
// suffixes, and otherwise unknown. Redistricting-in-progress and
// stale-data causes require temporal context (a data_date compared
// against a redistricting calendar) this pure function doesn't have;
// callers that can supply that context should wrap DefaultClassifier
// and override its CauseUnknown result accordingly.
func DefaultClassifier(geoid, kind string) DiagnosticCause {
	upper := strings.ToUpper(geoid)
	if strings.HasSuffix(upper, "ZZ") {
		return CauseZZWater
	}
	if hasMultiMemberSuffix(upper) {
		return CauseMultiMemberSeats
	}
	return CauseUnknown
}

// hasMultiMemberSuffix detects the common "duplicate district number
// plus letter suffix" convention used by multi-member legislative seats
// (e.g. district "014A" and "014B" sharing district 14).
func hasMultiMemberSuffix(geoid string) bool {
	if len(geoid) < 2 {
		return false
	}
	last := geoid[len(geoid)-1]
	if last < 'A' || last > 'Z' {
		return false
	}
	secondToLast := geoid[len(geoid)-2]
	return secondToLast >= '0' && secondToLast <= '9'
}
