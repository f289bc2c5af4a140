// Copyright 2025 Shadow Atlas Project

package datasource

import (
	"context"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/database"
)

// Postgres adapts database.BoundaryRepository to the Source interface so
// the resolver can treat it identically to TIGERweb or an in-memory set.
type Postgres struct {
	repo *database.BoundaryRepository
}

// NewPostgres returns a Source backed by a Postgres/PostGIS repository.
func NewPostgres(repo *database.BoundaryRepository) *Postgres {
	return &Postgres{repo: repo}
}

// Name implements Source.
func (p *Postgres) Name() string { return "postgres" }

// FindByBBox implements Source.
func (p *Postgres) FindByBBox(ctx context.Context, box boundary.BBox) ([]*boundary.Boundary, error) {
	return p.repo.FindByBBox(ctx, box)
}
