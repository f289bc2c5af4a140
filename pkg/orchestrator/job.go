// Copyright 2025 Shadow Atlas Project
//
// Job and task state for the batch orchestrator (C8). A job runs one
// extraction provider across a cross product of states and layers;
// each (state, layer) pair is one task with its own retry count and
// terminal status, so a job can land in a resumable partial/failed
// state instead of an all-or-nothing outcome.

package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Status is a job or task's position in its state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial" // some tasks failed; resumable
	StatusFailed    Status = "failed"  // no task completed; resumable
	StatusCancelled Status = "cancelled"
)

// Resumable reports whether a job in this status can be resumed by
// re-running only its non-completed tasks.
func (s Status) Resumable() bool {
	return s == StatusPartial || s == StatusFailed
}

// Task is one (state, layer) unit of work within a job.
type Task struct {
	State         string    `json:"state"`
	Layer         string    `json:"layer"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	FeatureCount  int       `json:"feature_count,omitempty"`
	ExpectedCount int       `json:"expected_count,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NotConfiguredTask is a requested (state, layer) pair the pinned
// registry has no entry for, recorded with a reason rather than
// aborting the rest of the job (spec.md §4.8 step 1).
type NotConfiguredTask struct {
	State  string `json:"state"`
	Layer  string `json:"layer"`
	Reason string `json:"reason"`
}

// ProgressStatus is the transition a ProgressEvent reports.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Progress summarizes how many of a job's tasks have reached a
// terminal state so far.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ProgressEvent is delivered to Options.OnProgress at every task state
// transition (spec.md §4.8: "Progress callback receives {job_id, task,
// status, progress, error?}").
type ProgressEvent struct {
	JobID    string
	Task     Task
	Status   ProgressStatus
	Progress Progress
	Error    string
}

// Options configures a job's execution. Orchestrate replaces zero
// Concurrency, MaxRetries and RetryDelay values with defaults; a zero
// RateLimit is kept and disables the sleep.
type Options struct {
	Concurrency int           // default 5
	MaxRetries  int           // default 3
	RetryDelay  time.Duration // default 2s
	RateLimit   time.Duration // sleep between task starts, 500ms in DefaultOptions; 0 disables

	// ContinueOnError, when false (the default), stops scheduling new
	// tasks as soon as one task exhausts its retries and fails — the
	// job's remaining tasks stay pending rather than all being
	// attempted. When true, every task runs to completion regardless
	// of earlier failures. Per spec.md §4.8 step 7 this distinguishes
	// the "none succeeded, continue_on_error was false" failure path
	// from "none succeeded, but every task was actually attempted".
	ContinueOnError bool

	// OnProgress, if set, is invoked synchronously at each task's
	// started/completed/failed transition. It must not block for long
	// since it runs on the worker goroutine handling that task.
	OnProgress func(ProgressEvent) `json:"-"`
}

// DefaultOptions returns the orchestrator's documented defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: 5,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
		RateLimit:   500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.RateLimit < 0 {
		o.RateLimit = 0
	}
	return o
}

// Job is a batch run of one provider across many (state, layer) pairs.
type Job struct {
	ID            string              `json:"id"`
	Status        Status              `json:"status"`
	Options       Options             `json:"options"`
	Tasks         []Task              `json:"tasks"`
	NotConfigured []NotConfiguredTask `json:"not_configured_tasks,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// newJobID generates an id in the spec.md §6 pinned format:
// job-<base36-time>-<8-hex-random>.
func newJobID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken;
		// there is no sane fallback, so surface it loudly rather than
		// silently handing out colliding job ids.
		panic(fmt.Sprintf("orchestrator: read random job id suffix: %v", err))
	}
	return fmt.Sprintf("job-%s-%s", strconv.FormatInt(time.Now().UnixNano(), 36), hex.EncodeToString(b[:]))
}

// NewJob builds a pending job covering the cross product of states and
// layers, each as one task, with no registry filtering applied. Used
// directly by callers (and tests) that already know every pair is
// configured; Orchestrator.Orchestrate builds jobs through
// newJobFromTasks instead, since it must filter pairs against the
// pinned registry first.
func NewJob(states, layers []string, opts Options) *Job {
	now := time.Now()
	tasks := make([]Task, 0, len(states)*len(layers))
	for _, s := range states {
		for _, l := range layers {
			tasks = append(tasks, Task{State: s, Layer: l, Status: StatusPending, UpdatedAt: now})
		}
	}
	return newJobFromTasks(tasks, opts, nil, now)
}

// newJobFromTasks builds a pending job from an already-filtered task
// list, recording any pairs notConfigured alongside it.
func newJobFromTasks(tasks []Task, opts Options, notConfigured []NotConfiguredTask, now time.Time) *Job {
	return &Job{
		ID:            newJobID(),
		Status:        StatusPending,
		Options:       opts.withDefaults(),
		Tasks:         tasks,
		NotConfigured: notConfigured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// pendingTaskIndexes returns the indexes of tasks not yet completed,
// used both for the initial run and for resuming a partial/failed job.
func (j *Job) pendingTaskIndexes() []int {
	var idx []int
	for i, t := range j.Tasks {
		if t.Status != StatusCompleted {
			idx = append(idx, i)
		}
	}
	return idx
}

// recomputeStatus derives the job's terminal status from its tasks'
// statuses once all scheduled work has finished, stopped early, or
// been cancelled.
func (j *Job) recomputeStatus(cancelled bool) {
	if cancelled {
		j.Status = StatusCancelled
		return
	}
	completed, failed := 0, 0
	for _, t := range j.Tasks {
		switch t.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case len(j.Tasks) == 0:
		j.Status = StatusCompleted
	case completed == len(j.Tasks):
		j.Status = StatusCompleted
	case completed == 0 && (!j.Options.ContinueOnError || failed == len(j.Tasks)):
		j.Status = StatusFailed
	default:
		j.Status = StatusPartial
	}
}
