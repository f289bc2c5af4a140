// Copyright 2025 Shadow Atlas Project

package orchestrator

import "errors"

var (
	// ErrJobNotFound is returned when a job id has no matching record in the store.
	ErrJobNotFound = errors.New("orchestrator: job not found")

	// ErrUnknownStateLayer describes a requested (state, layer) pair that
	// is not present in the pinned registry. Orchestrate does not return
	// it; its text becomes the reason of that pair's NotConfiguredTask.
	ErrUnknownStateLayer = errors.New("orchestrator: state/layer pair not in registry")

	// ErrNoTasks is returned when orchestrate is called with an empty
	// cross product of states and layers.
	ErrNoTasks = errors.New("orchestrator: no tasks to run")

	// ErrJobCancelled describes a job whose context has been cancelled.
	// No orchestrator operation returns it: a cancelled job settles into
	// StatusCancelled, and a task interrupted between retries records the
	// context's error as its LastError.
	ErrJobCancelled = errors.New("orchestrator: job was cancelled")
)
