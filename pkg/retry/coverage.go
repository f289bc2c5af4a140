// Copyright 2025 Shadow Atlas Project
//
// Coverage analyzer (C11): cross-references the pinned city list
// discovery is meant to cover against the provenance log's latest
// attempt per jurisdiction, producing an overview a human operator or
// a dashboard can act on.

package retry

import (
	"fmt"
	"sort"
	"time"

	"github.com/shadowatlas/atlas/pkg/provenance"
)

// CityRef is one entry in the pinned city list coverage is measured
// against — deliberately independent of provenance.Entry, since a
// city with zero attempts still needs to show up as a gap.
type CityRef struct {
	FIPS       string
	Name       string
	State      string
	Population int64
}

// Gap is an uncovered (or never-attempted) jurisdiction, used for the
// coverage report's top_gaps list.
type Gap struct {
	FIPS        string
	Name        string
	State       string
	Population  int64
	BlockerCode string // empty if no attempt has ever been recorded
}

// CoverageReport is the cross-reference result.
type CoverageReport struct {
	Total           int
	Covered         int
	CoveragePercent float64
	ByTier          map[int]int
	ByState         map[string]int
	TopGaps         []Gap
}

// topGapsLimit bounds how many gaps AnalyzeCoverage surfaces, so a
// nationwide sweep with thousands of open gaps doesn't produce an
// unusably large report.
const topGapsLimit = 25

// AnalyzeCoverage measures cities against log's latest-attempt map.
// A city counts as covered when its latest provenance entry is valid
// and carries no blocker code.
func AnalyzeCoverage(log *provenance.Log, cities []CityRef, now time.Time) (*CoverageReport, error) {
	entries, err := log.Query(provenance.Filter{})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]provenance.Entry, len(entries))
	for _, e := range entries {
		prior, ok := latest[e.FIPS]
		if !ok || e.Timestamp.After(prior.Timestamp) {
			latest[e.FIPS] = e
		}
	}

	report := &CoverageReport{
		ByTier:  make(map[int]int),
		ByState: make(map[string]int),
	}
	var gaps []Gap

	for _, city := range cities {
		report.Total++
		e, attempted := latest[city.FIPS]
		covered := attempted && e.Quality.Valid && e.BlockerCode == ""
		if covered {
			report.Covered++
			report.ByTier[e.GranularityTier]++
			report.ByState[city.State]++
			continue
		}
		blocker := ""
		if attempted {
			blocker = e.BlockerCode
		}
		gaps = append(gaps, Gap{
			FIPS:        city.FIPS,
			Name:        city.Name,
			State:       city.State,
			Population:  city.Population,
			BlockerCode: blocker,
		})
	}

	if report.Total > 0 {
		report.CoveragePercent = float64(report.Covered) / float64(report.Total) * 100
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Population > gaps[j].Population })
	if len(gaps) > topGapsLimit {
		gaps = gaps[:topGapsLimit]
	}
	report.TopGaps = gaps

	return report, nil
}

// StaleData returns every valid, unblocked provenance entry whose
// timestamp is older than maxAgeDays relative to now — boundaries the
// atlas still treats as covered but that haven't been re-verified
// recently enough to trust without a fresh pull.
func StaleData(log *provenance.Log, maxAgeDays int, now time.Time) ([]provenance.Entry, error) {
	entries, err := log.Query(provenance.Filter{})
	if err != nil {
		return nil, fmt.Errorf("retry: query stale data: %w", err)
	}

	latest := make(map[string]provenance.Entry, len(entries))
	for _, e := range entries {
		prior, ok := latest[e.FIPS]
		if !ok || e.Timestamp.After(prior.Timestamp) {
			latest[e.FIPS] = e
		}
	}

	cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	var stale []provenance.Entry
	for _, e := range latest {
		if e.Quality.Valid && e.BlockerCode == "" && e.Timestamp.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Timestamp.Before(stale[j].Timestamp) })
	return stale, nil
}
