// Copyright 2025 Shadow Atlas Project

package atlasbuild

import "sort"

// SortLeaves orders leaves by the canonical total order: boundary type
// ordinal ascending, then jurisdiction FIPS ascending, then GEOID
// ascending. This order is load-bearing — the Merkle tree, the
// manifest's leaf_count, and every proof path assume it, so two builds
// from the same boundary set must always produce the same order.
func SortLeaves(leaves []Leaf) {
	sort.Slice(leaves, func(i, j int) bool {
		a, b := leaves[i], leaves[j]
		if a.TypeOrdinal != b.TypeOrdinal {
			return a.TypeOrdinal < b.TypeOrdinal
		}
		if a.JurisdictionFIPS != b.JurisdictionFIPS {
			return a.JurisdictionFIPS < b.JurisdictionFIPS
		}
		return a.GEOID < b.GEOID
	})
}
