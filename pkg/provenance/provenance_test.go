// Copyright 2025 Shadow Atlas Project

package provenance

import (
	"testing"
	"time"
)

func testEntry(fips string, ts time.Time) Entry {
	return Entry{
		FIPS:            fips,
		GranularityTier: 1,
		Confidence:      80,
		Authority:       3,
		Quality:         Quality{Valid: true},
		ReasoningChain:  []string{"probed gis.example.gov"},
		TriedTiers:      []string{"tier1"},
		Timestamp:       ts.UTC(),
		AgentID:         "agent-1",
	}
}

func TestEntry_Validate(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	e := testEntry("06001", now)
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid entry, got %v", err)
	}
}

func TestEntry_Validate_RejectsOutOfRangeFields(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []Entry{
		func() Entry { e := testEntry("06001", now); e.GranularityTier = 9; return e }(),
		func() Entry { e := testEntry("06001", now); e.Confidence = 200; return e }(),
		func() Entry { e := testEntry("06001", now); e.Authority = 9; return e }(),
		func() Entry { e := testEntry("06001", now); e.ReasoningChain = nil; return e }(),
		func() Entry { e := testEntry("06001", now); e.TriedTiers = nil; return e }(),
		func() Entry { e := testEntry("", now); return e }(),
	}
	for i, e := range cases {
		if err := e.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestLog_AppendLockedAndQuery(t *testing.T) {
	dir := t.TempDir() + "/discovery-attempts"
	log, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := log.AppendLocked(testEntry("06001", now)); err != nil {
		t.Fatalf("AppendLocked: %v", err)
	}
	if err := log.AppendLocked(testEntry("06075", now)); err != nil {
		t.Fatalf("AppendLocked: %v", err)
	}
	if err := log.AppendLocked(testEntry("48201", now)); err != nil {
		t.Fatalf("AppendLocked: %v", err)
	}

	all, err := log.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}

	caFiltered, err := log.Query(Filter{State: "06"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(caFiltered) != 2 {
		t.Fatalf("expected 2 CA entries, got %d", len(caFiltered))
	}
}

func TestLog_AppendLocked_RejectsInvalidEntry(t *testing.T) {
	dir := t.TempDir() + "/discovery-attempts"
	log, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	bad := Entry{FIPS: "06001"} // missing required fields
	if err := log.AppendLocked(bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLog_StagingAndMerge(t *testing.T) {
	dir := t.TempDir() + "/discovery-attempts"
	log, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	if err := log.AppendStaging("worker-1", testEntry("17031", now)); err != nil {
		t.Fatalf("AppendStaging: %v", err)
	}
	if err := log.AppendStaging("worker-2", testEntry("17031", now)); err != nil {
		t.Fatalf("AppendStaging: %v", err)
	}

	preMerge, err := log.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(preMerge) != 2 {
		t.Fatalf("expected 2 staged entries visible pre-merge, got %d", len(preMerge))
	}

	if err := log.MergeStaging("2026-05"); err != nil {
		t.Fatalf("MergeStaging: %v", err)
	}

	postMerge, err := log.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(postMerge) != 2 {
		t.Fatalf("expected 2 entries after merge, got %d", len(postMerge))
	}
}

func TestFilter_MinConfidence(t *testing.T) {
	dir := t.TempDir() + "/discovery-attempts"
	log, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	low := testEntry("06001", now)
	low.Confidence = 30
	high := testEntry("06002", now)
	high.Confidence = 90

	if err := log.AppendLocked(low); err != nil {
		t.Fatal(err)
	}
	if err := log.AppendLocked(high); err != nil {
		t.Fatal(err)
	}

	results, err := log.Query(Filter{MinConfidence: 70})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].FIPS != "06002" {
		t.Fatalf("expected only high-confidence entry, got %+v", results)
	}
}
