// Copyright 2025 Shadow Atlas Project

package datasource

import (
	"context"
	"sync"

	"github.com/shadowatlas/atlas/pkg/boundary"
)

// InMemory is the simplest Source: a linear scan over a boundary slice
// guarded by a bbox check. It exists for tests and for small fixed
// datasets (e.g. country/state outlines) that never warrant a database.
type InMemory struct {
	mu         sync.RWMutex
	name       string
	boundaries []*boundary.Boundary
}

// NewInMemory returns an InMemory source seeded with boundaries.
func NewInMemory(name string, boundaries []*boundary.Boundary) *InMemory {
	return &InMemory{name: name, boundaries: append([]*boundary.Boundary(nil), boundaries...)}
}

// Name implements Source.
func (s *InMemory) Name() string { return s.name }

// Add appends a boundary to the in-memory set.
func (s *InMemory) Add(b *boundary.Boundary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundaries = append(s.boundaries, b)
}

// FindByBBox implements Source.
func (s *InMemory) FindByBBox(_ context.Context, box boundary.BBox) ([]*boundary.Boundary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*boundary.Boundary
	for _, b := range s.boundaries {
		if b.BBox.Intersects(box) {
			out = append(out, b)
		}
	}
	return out, nil
}
