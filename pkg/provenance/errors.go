// Copyright 2025 Shadow Atlas Project

package provenance

import "errors"

var (
	// ErrInvalidEntry is returned when Append is given an entry that
	// fails Entry.Validate.
	ErrInvalidEntry = errors.New("provenance: invalid entry")

	// ErrLockTimeout is returned when a shard's lock file could not be
	// acquired within the retry budget.
	ErrLockTimeout = errors.New("provenance: timed out acquiring shard lock")
)
