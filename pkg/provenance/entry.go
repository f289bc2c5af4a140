// Copyright 2025 Shadow Atlas Project
//
// Provenance entries (C10): a compact, append-only record of every
// discovery/extraction attempt, keyed by abbreviated field names so a
// compressed shard stays in the ~150-250 byte/entry range the storage
// layout is sized around.

package provenance

import (
	"fmt"
	"time"
)

// Entry is one discovery/extraction attempt record. JSON tags use the
// abbreviated names the wire format is sized around; see field docs
// for the long-form meaning of each.
type Entry struct {
	FIPS            string    `json:"fips"`
	Name            string    `json:"name,omitempty"`
	State           string    `json:"state,omitempty"`
	Population      int64     `json:"population,omitempty"`
	GranularityTier int       `json:"g"`    // 0..4
	FeatureCount    int       `json:"fc,omitempty"`
	Confidence      int       `json:"conf"` // 0..100
	Authority       int       `json:"auth"` // 0..5
	SourceKind      string    `json:"sk,omitempty"`
	URL             string    `json:"url,omitempty"`
	Quality         Quality   `json:"q"`
	ReasoningChain  []string  `json:"rc"`
	TriedTiers      []string  `json:"tt"`
	BlockerCode     string    `json:"blocker,omitempty"`
	Timestamp       time.Time `json:"ts"`
	AgentID         string    `json:"agent"`
	Supplemental    bool      `json:"supp,omitempty"`
}

// Quality holds the validation signals collected for the attempt.
type Quality struct {
	Valid        bool   `json:"valid"`
	TestsPassed  int    `json:"tp,omitempty"`
	ResponseMS   int64  `json:"rms,omitempty"`
	DataDate     string `json:"dd,omitempty"` // ISO-8601 date, optional
}

// Validate enforces the structural rules the spec requires at write
// time: entries failing this are rejected, never silently dropped.
func (e Entry) Validate() error {
	if e.FIPS == "" {
		return fmt.Errorf("provenance: entry missing fips")
	}
	if e.GranularityTier < 0 || e.GranularityTier > 4 {
		return fmt.Errorf("provenance: granularity tier %d out of [0,4]", e.GranularityTier)
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return fmt.Errorf("provenance: confidence %d out of [0,100]", e.Confidence)
	}
	if e.Authority < 0 || e.Authority > 5 {
		return fmt.Errorf("provenance: authority %d out of [0,5]", e.Authority)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("provenance: entry missing timestamp")
	}
	if e.Timestamp.Location() != time.UTC {
		return fmt.Errorf("provenance: timestamp must be UTC (Z)")
	}
	if len(e.ReasoningChain) == 0 {
		return fmt.Errorf("provenance: reasoning chain must be non-empty")
	}
	if len(e.TriedTiers) == 0 {
		return fmt.Errorf("provenance: tried tiers must be non-empty")
	}
	if e.AgentID == "" {
		return fmt.Errorf("provenance: entry missing agent id")
	}
	return nil
}

// shard returns the two-digit state-FIPS shard key this entry belongs
// to, derived from the first two characters of its FIPS code.
func (e Entry) shard() (string, error) {
	if len(e.FIPS) < 2 {
		return "", fmt.Errorf("provenance: fips %q too short to derive shard", e.FIPS)
	}
	return e.FIPS[:2], nil
}

// monthDir returns the YYYY-MM directory this entry belongs to,
// derived from the entry's own timestamp (not wall-clock at write
// time), so out-of-order writes land in the correct historical month.
func (e Entry) monthDir() string {
	return e.Timestamp.Format("2006-01")
}
