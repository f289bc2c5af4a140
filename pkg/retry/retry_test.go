// Copyright 2025 Shadow Atlas Project

package retry

import (
	"testing"
	"time"

	"github.com/shadowatlas/atlas/pkg/provenance"
)

func mustLog(t *testing.T) *provenance.Log {
	t.Helper()
	log, err := provenance.New(t.TempDir())
	if err != nil {
		t.Fatalf("provenance.New: %v", err)
	}
	return log
}

func baseEntry(fips string, ts time.Time) provenance.Entry {
	return provenance.Entry{
		FIPS:           fips,
		State:          fips[:2],
		GranularityTier: 4,
		Confidence:     80,
		Authority:      3,
		ReasoningChain: []string{"test entry"},
		TriedTiers:     []string{"server-probe"},
		Timestamp:      ts.UTC(),
		AgentID:        "retry-test",
	}
}

func TestPolicy_IntervalAndEligibility(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		code     string
		elapsed  time.Duration
		eligible bool
	}{
		{"rate-limit", 2 * time.Hour, true},
		{"rate-limit", 30 * time.Minute, false},
		{"portal-404", 25 * time.Hour, true},
		{"portal-404", 1 * time.Hour, false},
		{"no-council-layer", 100 * 24 * time.Hour, true},
		{"no-council-layer", 10 * 24 * time.Hour, false},
		{"at-large-governance", 10000 * 24 * time.Hour, false},
		{"some-unknown-code", 25 * time.Hour, true},
		{"some-unknown-code", 1 * time.Hour, false},
	}
	for _, c := range cases {
		got := p.Eligible(c.code, now.Add(-c.elapsed), now)
		if got != c.eligible {
			t.Errorf("Eligible(%q, elapsed=%s) = %v, want %v", c.code, c.elapsed, got, c.eligible)
		}
	}
}

func TestExtractCandidates_FiltersByEligibilityAndSortsByPopulation(t *testing.T) {
	log := mustLog(t)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	small := baseEntry("0612345", now.Add(-48*time.Hour))
	small.BlockerCode = "portal-404"
	small.Population = 5000
	small.Quality.Valid = false

	big := baseEntry("3612345", now.Add(-48*time.Hour))
	big.BlockerCode = "portal-404"
	big.Population = 2_000_000
	big.Quality.Valid = false

	notYetEligible := baseEntry("4812345", now.Add(-1*time.Hour))
	notYetEligible.BlockerCode = "portal-404"
	notYetEligible.Population = 9_000_000
	notYetEligible.Quality.Valid = false

	never := baseEntry("5312345", now.Add(-10000*time.Hour))
	never.BlockerCode = "at-large-governance"
	never.Population = 9_999_999
	never.Quality.Valid = false

	covered := baseEntry("0112345", now.Add(-48*time.Hour))
	covered.Population = 1_000_000
	covered.Quality.Valid = true

	for _, e := range []provenance.Entry{small, big, notYetEligible, never, covered} {
		if err := log.AppendLocked(e); err != nil {
			t.Fatalf("AppendLocked: %v", err)
		}
	}

	candidates, err := ExtractCandidates(log, DefaultPolicy(), now)
	if err != nil {
		t.Fatalf("ExtractCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 eligible candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].FIPS != "3612345" || candidates[1].FIPS != "0612345" {
		t.Fatalf("expected population-descending order, got %+v", candidates)
	}
}

func TestAnalyzeCoverage_ComputesPercentAndGaps(t *testing.T) {
	log := mustLog(t)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	covered := baseEntry("0612345", now.Add(-48*time.Hour))
	covered.Quality.Valid = true
	blocked := baseEntry("3612345", now.Add(-48*time.Hour))
	blocked.BlockerCode = "no-council-layer"
	blocked.Quality.Valid = false

	for _, e := range []provenance.Entry{covered, blocked} {
		if err := log.AppendLocked(e); err != nil {
			t.Fatalf("AppendLocked: %v", err)
		}
	}

	cities := []CityRef{
		{FIPS: "0612345", Name: "Covered City", State: "06", Population: 100000},
		{FIPS: "3612345", Name: "Blocked City", State: "36", Population: 500000},
		{FIPS: "4812345", Name: "Never Attempted City", State: "48", Population: 900000},
	}

	report, err := AnalyzeCoverage(log, cities, now)
	if err != nil {
		t.Fatalf("AnalyzeCoverage: %v", err)
	}
	if report.Total != 3 || report.Covered != 1 {
		t.Fatalf("expected total=3 covered=1, got %+v", report)
	}
	if report.CoveragePercent < 33.0 || report.CoveragePercent > 34.0 {
		t.Fatalf("expected ~33%% coverage, got %f", report.CoveragePercent)
	}
	if len(report.TopGaps) != 2 {
		t.Fatalf("expected 2 gaps, got %d", len(report.TopGaps))
	}
	if report.TopGaps[0].FIPS != "4812345" {
		t.Fatalf("expected highest-population gap first, got %+v", report.TopGaps[0])
	}
}

func TestStaleData_ExcludesRecentAndBlockedEntries(t *testing.T) {
	log := mustLog(t)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	old := baseEntry("0612345", now.Add(-200*24*time.Hour))
	old.Quality.Valid = true

	fresh := baseEntry("3612345", now.Add(-1*time.Hour))
	fresh.Quality.Valid = true

	oldButBlocked := baseEntry("4812345", now.Add(-200*24*time.Hour))
	oldButBlocked.BlockerCode = "portal-404"
	oldButBlocked.Quality.Valid = false

	for _, e := range []provenance.Entry{old, fresh, oldButBlocked} {
		if err := log.AppendLocked(e); err != nil {
			t.Fatalf("AppendLocked: %v", err)
		}
	}

	stale, err := StaleData(log, 90, now)
	if err != nil {
		t.Fatalf("StaleData: %v", err)
	}
	if len(stale) != 1 || stale[0].FIPS != "0612345" {
		t.Fatalf("expected exactly the old-and-valid entry, got %+v", stale)
	}
}
