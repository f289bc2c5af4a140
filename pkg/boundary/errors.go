// Copyright 2025 Shadow Atlas Project

package boundary

import "errors"

// ErrNoGeometry is returned by RecomputeBBox when a Geometry has neither
// a Polygon nor a MultiPolygon set.
var ErrNoGeometry = errors.New("boundary: geometry has neither polygon nor multipolygon")

// ErrEmptyGeometry is returned by RecomputeBBox when the geometry has no
// points at all.
var ErrEmptyGeometry = errors.New("boundary: geometry has no points")
