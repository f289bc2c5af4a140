// Copyright 2025 Shadow Atlas Project
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrBoundaryNotFound is returned when a boundary record is not found.
	ErrBoundaryNotFound = errors.New("boundary not found")

	// ErrJobNotFound is returned when an orchestrator job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrSnapshotNotFound is returned when an atlas snapshot record is not found.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
