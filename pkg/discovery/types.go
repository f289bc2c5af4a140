// Copyright 2025 Shadow Atlas Project

package discovery

import (
	"github.com/shadowatlas/atlas/pkg/boundary"
)

// MaxFolderDepth is the hard recursion limit for ArcGIS folder BFS/DFS.
const MaxFolderDepth = 5

// Confidence tier thresholds for a scored layer.
const (
	HighConfidenceThreshold  = 70
	ReviewConfidenceThreshold = 50
)

// Tier classifies a scored layer for downstream handling.
type Tier string

const (
	TierHighConfidence Tier = "high_confidence"
	TierNeedsReview    Tier = "needs_review"
	TierRejected       Tier = "rejected"
)

// TierForScore maps a 0-100 semantic score to its confidence tier.
func TierForScore(score int) Tier {
	switch {
	case score >= HighConfidenceThreshold:
		return TierHighConfidence
	case score >= ReviewConfidenceThreshold:
		return TierNeedsReview
	default:
		return TierRejected
	}
}

// City is one municipality to probe for a council-district layer.
type City struct {
	Slug          string // used to build candidate URL patterns, e.g. "springfield-il"
	Name          string
	State         string
	PlaceFIPS     string
	ExpectedBBox  boundary.BBox
}

// Candidate is one GIS server found healthy for a city.
type Candidate struct {
	City     City
	BaseURL  string
	Kind     string // "arcgis" or "geoserver"
}

// LayerInfo is one discovered layer's details, fetched individually
// once a folder/service listing exposes it.
type LayerInfo struct {
	ID           string
	Name         string
	GeometryType string // e.g. "esriGeometryPolygon"
	Fields       []string
	Extent       boundary.BBox
	FeatureCount int
	ServiceURL   string
}

// ScoredLayer is a LayerInfo plus its semantic score and tier.
type ScoredLayer struct {
	Layer LayerInfo
	Score int
	Tier  Tier
	Notes []string // reasoning chain entries explaining the score
}
