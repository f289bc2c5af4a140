// Copyright 2025 Shadow Atlas Project

package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/extraction"
	"github.com/shadowatlas/atlas/pkg/validation"
)

type fakeProvider struct {
	mu        sync.Mutex
	calls     int32
	failUntil map[string]int32 // key -> number of times to fail before succeeding
	alwaysErr map[string]bool
}

func (p *fakeProvider) key(state, layer string) string { return state + "/" + layer }

func (p *fakeProvider) Extract(ctx context.Context, state, layer string) (*extraction.Result, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	defer p.mu.Unlock()

	k := p.key(state, layer)
	if p.alwaysErr[k] {
		return nil, fmt.Errorf("simulated permanent failure for %s", k)
	}
	if n := p.failUntil[k]; n > 0 {
		p.failUntil[k] = n - 1
		return nil, fmt.Errorf("simulated transient failure for %s", k)
	}
	return &extraction.Result{State: state, Layer: layer, FeatureCount: 1, Success: true}, nil
}

func (p *fakeProvider) SourceKind() boundary.SourceKind { return boundary.SourceGeoJSON }

func testRegistry(pairs ...[2]string) []validation.RegistryEntry {
	entries := make([]validation.RegistryEntry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, validation.RegistryEntry{State: p[0], Layer: p[1], ExpectedCount: 1, StateFIPS: "06", MinGEOIDLen: 2})
	}
	return entries
}

func TestOrchestrate_HappyPath(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}, [2]string{"CA", "precinct"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, Options{})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	for _, task := range job.Tasks {
		if task.Status != StatusCompleted {
			t.Errorf("task %s/%s not completed: %s", task.State, task.Layer, task.Status)
		}
	}
}

func TestOrchestrate_RecordsNotConfiguredPairsInsteadOfAborting(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, Options{})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if len(job.NotConfigured) != 1 || job.NotConfigured[0].Layer != "precinct" {
		t.Fatalf("expected precinct recorded as not configured, got %+v", job.NotConfigured)
	}
	if job.NotConfigured[0].Reason == "" {
		t.Error("expected a non-empty reason for the not-configured pair")
	}
	if len(job.Tasks) != 1 || job.Tasks[0].Layer != "county" {
		t.Fatalf("expected only the configured county task to run, got %+v", job.Tasks)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected the configured pair to still complete the job, got %s", job.Status)
	}

	report := job.Report()
	if report.ConfigurableTasks != 1 || report.Matched != 1 || report.CoveragePercent != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	foundNotConfigured := false
	for _, row := range report.Rows {
		if row.Status == RowNotConfigured && row.Layer == "precinct" {
			foundNotConfigured = true
		}
	}
	if !foundNotConfigured {
		t.Fatalf("expected a not_configured row for precinct, got %+v", report.Rows)
	}
}

func TestOrchestrate_RetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{"CA/county": 2}, alwaysErr: map[string]bool{}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county"}, Options{RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %s", job.Status)
	}
	if job.Tasks[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", job.Tasks[0].Attempts)
	}
}

func TestOrchestrate_PartialOnMixedOutcomes(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{"CA/precinct": true}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}, [2]string{"CA", "precinct"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, Options{RetryDelay: time.Millisecond, MaxRetries: 1})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", job.Status)
	}
}

func TestResume_RerunsOnlyFailedTasks(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{"CA/precinct": true}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}, [2]string{"CA", "precinct"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, Options{RetryDelay: time.Millisecond, MaxRetries: 1})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusPartial {
		t.Fatalf("expected partial before resume, got %s", job.Status)
	}

	// the county task should not be retried again at resume time
	callsBeforeResume := atomic.LoadInt32(&p.calls)

	p.mu.Lock()
	p.alwaysErr["CA/precinct"] = false
	p.mu.Unlock()

	resumed, err := o.Resume(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusCompleted {
		t.Fatalf("expected completed after resume, got %s", resumed.Status)
	}
	if atomic.LoadInt32(&p.calls) != callsBeforeResume+1 {
		t.Errorf("expected exactly 1 new extraction call on resume, calls went from %d to %d", callsBeforeResume, p.calls)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	job := NewJob([]string{"CA"}, []string{"county"}, Options{})
	if err := store.Save(job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(job.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != job.ID {
		t.Errorf("expected id %s, got %s", job.ID, loaded.ID)
	}
}

func TestStore_LoadMissingJobReturnsErrJobNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	job := NewJob([]string{"CA"}, []string{"county"}, Options{})
	if _, err := store.Load(job.ID); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestNewJob_GeneratesSpecPinnedIDFormat(t *testing.T) {
	job := NewJob([]string{"CA"}, []string{"county"}, Options{})
	if !strings.HasPrefix(job.ID, "job-") {
		t.Fatalf("expected job id to start with job-, got %s", job.ID)
	}
	parts := strings.Split(job.ID, "-")
	if len(parts) != 3 {
		t.Fatalf("expected job id to have 3 hyphen-separated parts, got %s", job.ID)
	}
	if len(parts[2]) != 8 {
		t.Fatalf("expected 8 hex chars in random suffix, got %q", parts[2])
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		t.Fatalf("expected random suffix to be hex, got %q: %v", parts[2], err)
	}
}

func TestOrchestrate_StopsSchedulingOnFailureWithoutContinueOnError(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{"CA/county": true}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county"}, Options{RetryDelay: time.Millisecond, MaxRetries: 1, ContinueOnError: false})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
}

func TestOrchestrate_ContinueOnErrorRunsEveryTask(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{"CA/precinct": true}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}, [2]string{"CA", "precinct"}), store, nil)

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, Options{RetryDelay: time.Millisecond, MaxRetries: 1, ContinueOnError: true})
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}
	if job.Status != StatusPartial {
		t.Fatalf("expected partial status with continue_on_error, got %s", job.Status)
	}
	for _, task := range job.Tasks {
		if task.Attempts == 0 {
			t.Errorf("expected task %s/%s to have been attempted, got 0 attempts", task.State, task.Layer)
		}
	}
}

func TestOrchestrate_OnProgressReceivesEveryTransition(t *testing.T) {
	p := &fakeProvider{failUntil: map[string]int32{}, alwaysErr: map[string]bool{}}
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(p, testRegistry([2]string{"CA", "county"}, [2]string{"CA", "precinct"}), store, nil)

	var mu sync.Mutex
	var events []ProgressEvent
	opts := Options{
		OnProgress: func(ev ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		},
	}

	job, err := o.Orchestrate(context.Background(), []string{"CA"}, []string{"county", "precinct"}, opts)
	if err != nil {
		t.Fatalf("Orchestrate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(job.Tasks)*2 {
		t.Fatalf("expected a started+completed pair per task, got %d events for %d tasks", len(events), len(job.Tasks))
	}
	for _, ev := range events {
		if ev.JobID != job.ID {
			t.Errorf("expected job id %s on event, got %s", job.ID, ev.JobID)
		}
		if ev.Status != ProgressStarted && ev.Status != ProgressCompleted && ev.Status != ProgressFailed {
			t.Errorf("unexpected progress status %q", ev.Status)
		}
	}
}
