// Copyright 2025 Shadow Atlas Project
//
// Job validation report export (spec.md §4.8): a completed job's tasks
// reduce to a per-(state,layer) report classifying each as match,
// mismatch, error, or not_configured, with overall coverage.

package orchestrator

import "github.com/shadowatlas/atlas/pkg/validation"

// RowStatus classifies one (state, layer) pair's outcome in a Report.
type RowStatus string

const (
	RowMatch         RowStatus = "match"
	RowMismatch      RowStatus = "mismatch"
	RowError         RowStatus = "error"
	RowNotConfigured RowStatus = "not_configured"
)

// ReportRow is one (state, layer) pair's classified outcome.
type ReportRow struct {
	State         string              `json:"state"`
	Layer         string              `json:"layer"`
	Status        RowStatus           `json:"status"`
	ExpectedCount int                 `json:"expected_count,omitempty"`
	ActualCount   int                 `json:"actual_count,omitempty"`
	Mismatch      *validation.CountMismatch `json:"mismatch,omitempty"`
	Error         string              `json:"error,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

// Report summarizes a job's final state as a validation report.
type Report struct {
	JobID             string      `json:"job_id"`
	Status            Status      `json:"status"`
	Rows              []ReportRow `json:"rows"`
	ConfigurableTasks int         `json:"configurable_tasks"`
	Matched           int         `json:"matched"`
	CoveragePercent   float64     `json:"coverage_percent"`
}

// Report reduces job's current state into a validation report. Each
// configured task is classified error (the task never succeeded),
// mismatch (succeeded but its feature count disagrees with the pinned
// registry expectation), or match (succeeded and the count agrees); each
// not-configured pair is carried through as not_configured.
// CoveragePercent is matched / configurable_tasks, where
// configurable_tasks excludes not_configured rows (spec.md §4.8).
func (j *Job) Report() *Report {
	rows := make([]ReportRow, 0, len(j.Tasks)+len(j.NotConfigured))
	matched := 0

	for _, t := range j.Tasks {
		row := ReportRow{
			State:         t.State,
			Layer:         t.Layer,
			ExpectedCount: t.ExpectedCount,
			ActualCount:   t.FeatureCount,
		}
		switch {
		case t.Status != StatusCompleted:
			row.Status = RowError
			row.Error = t.LastError
		default:
			entry := validation.RegistryEntry{State: t.State, Layer: t.Layer, ExpectedCount: t.ExpectedCount}
			if mismatch := validation.CheckCount(entry, t.FeatureCount); mismatch != nil {
				row.Status = RowMismatch
				row.Mismatch = mismatch
			} else {
				row.Status = RowMatch
				matched++
			}
		}
		rows = append(rows, row)
	}

	for _, nc := range j.NotConfigured {
		rows = append(rows, ReportRow{
			State:  nc.State,
			Layer:  nc.Layer,
			Status: RowNotConfigured,
			Reason: nc.Reason,
		})
	}

	configurable := len(j.Tasks)
	var coverage float64
	if configurable > 0 {
		coverage = float64(matched) / float64(configurable)
	}

	return &Report{
		JobID:             j.ID,
		Status:            j.Status,
		Rows:              rows,
		ConfigurableTasks: configurable,
		Matched:           matched,
		CoveragePercent:   coverage,
	}
}
