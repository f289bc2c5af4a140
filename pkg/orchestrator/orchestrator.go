// Copyright 2025 Shadow Atlas Project
//
// Batch orchestrator (C8): runs an extraction.Provider across a cross
// product of states and layers through a bounded worker pool, with
// per-task retry and atomic job-state persistence so a crash mid-run
// leaves a resumable partial/failed job instead of silent data loss.

package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shadowatlas/atlas/pkg/extraction"
	"github.com/shadowatlas/atlas/pkg/validation"
)

// Orchestrator runs jobs against a single extraction provider, pinning
// every (state, layer) pair it is asked to run against a registry so a
// typo never silently extracts nothing.
type Orchestrator struct {
	provider extraction.Provider
	registry map[string]validation.RegistryEntry // keyed by state+"/"+layer
	store    *Store
	logger   *log.Logger
}

// New builds an Orchestrator. registry pins the allowed (state, layer)
// pairs this orchestrator may run; store persists job progress.
func New(provider extraction.Provider, registry []validation.RegistryEntry, store *Store, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[orchestrator] ", log.LstdFlags)
	}
	idx := make(map[string]validation.RegistryEntry, len(registry))
	for _, e := range registry {
		idx[registryKey(e.State, e.Layer)] = e
	}
	return &Orchestrator{provider: provider, registry: idx, store: store, logger: logger}
}

func registryKey(state, layer string) string { return state + "/" + layer }

// TaskResult reports one finished extraction task's outcome for
// callers that want to react live (e.g. chaining into pkg/provenance).
type TaskResult struct {
	State, Layer string
	Result       *extraction.Result
	Err          error
}

// Orchestrate pre-validates every requested (state, layer) pair against
// the pinned registry (spec.md §4.8 step 1): pairs absent from the
// registry are recorded on the job's NotConfigured list with a reason
// rather than aborting the whole submission, so a job mixing known and
// unknown pairs still runs to completion on the pairs it can.
func (o *Orchestrator) Orchestrate(ctx context.Context, states, layers []string, opts Options) (*Job, error) {
	if len(states) == 0 || len(layers) == 0 {
		return nil, ErrNoTasks
	}

	now := time.Now()
	var tasks []Task
	var notConfigured []NotConfiguredTask
	for _, s := range states {
		for _, l := range layers {
			entry, ok := o.registry[registryKey(s, l)]
			if !ok {
				notConfigured = append(notConfigured, NotConfiguredTask{
					State:  s,
					Layer:  l,
					Reason: fmt.Sprintf("%s/%s: %v", s, l, ErrUnknownStateLayer),
				})
				continue
			}
			tasks = append(tasks, Task{
				State:         s,
				Layer:         l,
				Status:        StatusPending,
				ExpectedCount: entry.ExpectedCount,
				UpdatedAt:     now,
			})
		}
	}

	job := newJobFromTasks(tasks, opts, notConfigured, now)
	return job, o.run(ctx, job)
}

// Resume re-runs every non-completed task of an existing partial or
// failed job.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*Job, error) {
	job, err := o.store.Load(id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Resumable() {
		return job, nil
	}
	return job, o.run(ctx, job)
}

// run executes every pending task of job through a bounded worker pool,
// persisting job state after each task finishes. When job.Options isn't
// ContinueOnError, no new task is scheduled once one has failed, so the
// job's remaining tasks stay pending (spec.md §4.8 step 7).
func (o *Orchestrator) run(ctx context.Context, job *Job) error {
	opts := job.Options.withDefaults()
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	if err := o.persist(job); err != nil {
		o.logger.Printf("warning: failed to persist job %s at start: %v", job.ID, err)
	}

	pending := job.pendingTaskIndexes()
	if len(pending) == 0 {
		job.recomputeStatus(false)
		return o.persist(job)
	}

	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	cancelled := false
	stopScheduling := false

	for _, idx := range pending {
		idx := idx

		mu.Lock()
		shouldStop := cancelled || stopScheduling
		mu.Unlock()
		if shouldStop {
			break
		}

		select {
		case <-ctx.Done():
			mu.Lock()
			cancelled = true
			mu.Unlock()
			break
		default:
		}

		if opts.RateLimit > 0 {
			time.Sleep(opts.RateLimit)
		}

		wg.Add(1)
		sem <- struct{}{}

		o.emitProgress(job, job.Tasks[idx], ProgressStarted, "")

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			task := o.runTaskWithRetry(ctx, job.Tasks[idx], opts)

			mu.Lock()
			job.Tasks[idx] = task
			job.UpdatedAt = time.Now()
			if task.Status == StatusFailed && !opts.ContinueOnError {
				stopScheduling = true
			}
			if err := o.persist(job); err != nil {
				o.logger.Printf("warning: failed to persist job %s after task %s/%s: %v", job.ID, task.State, task.Layer, err)
			}
			mu.Unlock()

			if task.Status == StatusFailed {
				o.emitProgress(job, task, ProgressFailed, task.LastError)
			} else {
				o.emitProgress(job, task, ProgressCompleted, "")
			}
		}()
	}

	wg.Wait()

	job.recomputeStatus(cancelled)
	job.UpdatedAt = time.Now()
	return o.persist(job)
}

// emitProgress invokes job.Options.OnProgress with a snapshot of job's
// current completed/failed counts, if a callback is configured.
func (o *Orchestrator) emitProgress(job *Job, task Task, status ProgressStatus, errMsg string) {
	if job.Options.OnProgress == nil {
		return
	}
	completed, failed := 0, 0
	for _, t := range job.Tasks {
		switch t.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	job.Options.OnProgress(ProgressEvent{
		JobID:  job.ID,
		Task:   task,
		Status: status,
		Progress: Progress{
			Total:     len(job.Tasks),
			Completed: completed,
			Failed:    failed,
		},
		Error: errMsg,
	})
}

// runTaskWithRetry runs one task's extraction, retrying up to
// opts.MaxRetries times with opts.RetryDelay between attempts.
func (o *Orchestrator) runTaskWithRetry(ctx context.Context, task Task, opts Options) Task {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				task.Status = StatusFailed
				task.LastError = ctx.Err().Error()
				task.Attempts = attempt
				task.UpdatedAt = time.Now()
				return task
			case <-time.After(opts.RetryDelay):
			}
		}

		task.Attempts = attempt + 1
		res, err := o.provider.Extract(ctx, task.State, task.Layer)
		if err == nil && (res == nil || res.Success) {
			task.Status = StatusCompleted
			task.LastError = ""
			if res != nil {
				task.FeatureCount = res.FeatureCount
			}
			task.UpdatedAt = time.Now()
			return task
		}
		if err != nil {
			lastErr = err
		} else if res != nil && res.Err != nil {
			lastErr = res.Err
		} else {
			lastErr = fmt.Errorf("extraction reported failure for %s/%s", task.State, task.Layer)
		}
	}

	task.Status = StatusFailed
	if lastErr != nil {
		task.LastError = lastErr.Error()
	}
	task.UpdatedAt = time.Now()
	return task
}

func (o *Orchestrator) persist(job *Job) error {
	if o.store == nil {
		return nil
	}
	return o.store.Save(job)
}
