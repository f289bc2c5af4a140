// Copyright 2025 Shadow Atlas Project

package validation

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// ToJSON serializes the report as indented JSON.
func (r *Report) ToJSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("validation: marshal report: %w", err)
	}
	return b, nil
}

// ToMarkdown renders a human-readable summary suitable for a PR comment
// or a dashboard embed.
func (r *Report) ToMarkdown() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Validation report: %s / %s\n\n", r.State, r.Layer)
	fmt.Fprintf(&buf, "- Job: `%s`\n", r.JobID)
	fmt.Fprintf(&buf, "- Passed: **%v**\n", r.Passed)
	fmt.Fprintf(&buf, "- Confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(&buf, "- Duration: %s\n\n", r.Duration())

	if len(r.CountMismatches) > 0 {
		buf.WriteString("## Count mismatches\n\n")
		for _, m := range r.CountMismatches {
			fmt.Fprintf(&buf, "- %s/%s: expected %d, got %d (%s)\n", m.State, m.Layer, m.Expected, m.Actual, m.Severity)
		}
		buf.WriteString("\n")
	}
	if len(r.GeoIDIssues) > 0 {
		buf.WriteString("## GEOID format issues\n\n")
		for _, i := range r.GeoIDIssues {
			fmt.Fprintf(&buf, "- `%s`: %s\n", i.GEOID, i.Reason)
		}
		buf.WriteString("\n")
	}
	if len(r.GeometryIssues) > 0 {
		buf.WriteString("## Geometry issues\n\n")
		for _, i := range r.GeometryIssues {
			fmt.Fprintf(&buf, "- `%s`: %s (%s)\n", i.BoundaryID, i.Kind, i.Detail)
		}
		buf.WriteString("\n")
	}
	if len(r.CrossSourceDiscrepancies) > 0 {
		buf.WriteString("## Cross-source discrepancies\n\n")
		for _, d := range r.CrossSourceDiscrepancies {
			fmt.Fprintf(&buf, "- `%s`: %s (%s)\n", d.GEOID, d.Kind, d.Cause)
		}
	}
	return buf.String()
}

// ToCSV flattens every issue category into one row-per-issue CSV, with a
// leading "category" column to distinguish them.
func (r *Report) ToCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"category", "key", "detail", "severity_or_cause"}); err != nil {
		return nil, err
	}
	for _, m := range r.CountMismatches {
		w.Write([]string{"count_mismatch", m.State + "/" + m.Layer, strconv.Itoa(m.Delta), m.Severity.String()})
	}
	for _, i := range r.GeoIDIssues {
		w.Write([]string{"geoid_format", i.GEOID, i.Reason, ""})
	}
	for _, i := range r.GeometryIssues {
		w.Write([]string{"geometry", i.BoundaryID, i.Detail, i.Kind})
	}
	for _, d := range r.CrossSourceDiscrepancies {
		w.Write([]string{"cross_source", d.GEOID, d.Kind, string(d.Cause)})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("validation: write csv: %w", err)
	}
	return buf.Bytes(), nil
}
