// Copyright 2025 Shadow Atlas Project
//
// Pinned municipal-portal registry (spec.md §8: "Known municipal
// portals: per city FIPS, {portal_type, download_url, feature_count,
// last_verified, confidence, discovered_by, notes}"). Loaded from an
// embedded YAML file at package init, following pkg/database/client.go's
// go:embed pattern for pinned reference data.

package discovery

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/retry"
)

//go:embed registry/municipal_portals.yaml
var registryFS embed.FS

// PortalRegistryEntry is one pinned city record: where to probe for a
// council-district GIS layer, and whatever a prior discovery run
// already learned about its portal.
type PortalRegistryEntry struct {
	Slug         string   `yaml:"slug"`
	Name         string   `yaml:"name"`
	State        string   `yaml:"state"`
	PlaceFIPS    string   `yaml:"place_fips"`
	BBox         bboxYAML `yaml:"bbox"`
	PortalType   string   `yaml:"portal_type"`
	DownloadURL  string   `yaml:"download_url"`
	FeatureCount int      `yaml:"feature_count"`
	Confidence   int      `yaml:"confidence"`
	DiscoveredBy string   `yaml:"discovered_by"`
	Notes        string   `yaml:"notes"`
}

type bboxYAML struct {
	MinLng float64 `yaml:"min_lng"`
	MinLat float64 `yaml:"min_lat"`
	MaxLng float64 `yaml:"max_lng"`
	MaxLat float64 `yaml:"max_lat"`
}

// City converts e into the City shape Engine.Discover probes.
func (e PortalRegistryEntry) City() City {
	return City{
		Slug:      e.Slug,
		Name:      e.Name,
		State:     e.State,
		PlaceFIPS: e.PlaceFIPS,
		ExpectedBBox: boundary.BBox{
			MinLng: e.BBox.MinLng,
			MinLat: e.BBox.MinLat,
			MaxLng: e.BBox.MaxLng,
			MaxLat: e.BBox.MaxLat,
		},
	}
}

// CoverageRef converts e into the CityRef shape pkg/retry's coverage
// analyzer cross-references against the provenance log. Population is
// not tracked by this registry and is left zero.
func (e PortalRegistryEntry) CoverageRef() retry.CityRef {
	return retry.CityRef{
		FIPS:  e.PlaceFIPS,
		Name:  e.Name,
		State: e.State,
	}
}

// LoadRegistry parses data (the municipal_portals.yaml format) into a
// list of registry entries.
func LoadRegistry(data []byte) ([]PortalRegistryEntry, error) {
	var entries []PortalRegistryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("discovery: parse municipal portal registry: %w", err)
	}
	return entries, nil
}

// DefaultRegistry is the embedded municipal-portal registry, parsed
// once at package init. A malformed embedded file is a build-time
// defect, so init panics rather than returning an error every caller
// would have to handle.
var DefaultRegistry = mustLoadDefaultRegistry()

func mustLoadDefaultRegistry() []PortalRegistryEntry {
	data, err := registryFS.ReadFile("registry/municipal_portals.yaml")
	if err != nil {
		panic(fmt.Sprintf("discovery: read embedded municipal portal registry: %v", err))
	}
	entries, err := LoadRegistry(data)
	if err != nil {
		panic(fmt.Sprintf("discovery: %v", err))
	}
	return entries
}

// Cities returns the City list Engine.Discover should probe, in
// registry order.
func Cities(entries []PortalRegistryEntry) []City {
	cities := make([]City, len(entries))
	for i, e := range entries {
		cities[i] = e.City()
	}
	return cities
}

// CoverageRefs returns the CityRef list pkg/retry's coverage analyzer
// should cross-reference, in registry order.
func CoverageRefs(entries []PortalRegistryEntry) []retry.CityRef {
	refs := make([]retry.CityRef, len(entries))
	for i, e := range entries {
		refs[i] = e.CoverageRef()
	}
	return refs
}
