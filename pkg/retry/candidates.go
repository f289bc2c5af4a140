// Copyright 2025 Shadow Atlas Project

package retry

import (
	"sort"
	"time"

	"github.com/shadowatlas/atlas/pkg/provenance"
)

// Candidate is one jurisdiction eligible for a retry attempt.
type Candidate struct {
	FIPS        string
	Name        string
	State       string
	Population  int64
	BlockerCode string
	LastAttempt time.Time
}

// ExtractCandidates scans every entry in log, groups by FIPS keeping
// only the latest attempt per jurisdiction, and returns those whose
// last attempt carried a blocker code and are past their policy's
// retry interval as of now. Results are sorted by population
// descending so the highest-impact jurisdictions are retried first.
func ExtractCandidates(log *provenance.Log, policy *Policy, now time.Time) ([]Candidate, error) {
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

	var candidates []Candidate
	for fips, e := range latest {
		if e.BlockerCode == "" {
			continue
		}
		if !policy.Eligible(e.BlockerCode, e.Timestamp, now) {
			continue
		}
		candidates = append(candidates, Candidate{
			FIPS:        fips,
			Name:        e.Name,
			State:       e.State,
			Population:  e.Population,
			BlockerCode: e.BlockerCode,
			LastAttempt: e.Timestamp,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Population > candidates[j].Population
	})
	return candidates, nil
}
