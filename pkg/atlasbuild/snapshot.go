// Copyright 2025 Shadow Atlas Project
//
// Snapshot assembly and content-addressed serialization (C12 steps
// 5-6). A Snapshot is the file the Atlas server loads at startup and
// the file pkg/onchain's root hash must match.

package atlasbuild

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/commitment"
	"github.com/shadowatlas/atlas/pkg/hash"
	"github.com/shadowatlas/atlas/pkg/validation"
)

// SnapshotVersion is the on-disk format version, bumped whenever the
// wire shape of Snapshot changes incompatibly.
const SnapshotVersion = "1"

// wireLeaf/wireSnapshot are the JSON-serializable shadow of Leaf and
// Snapshot: hash.Element has no JSON encoding of its own, so every
// field element is serialized via hash.ToHexBE for a stable,
// byte-identical-across-builds representation.
type wireLeaf struct {
	BoundaryID       string `json:"boundary_id"`
	TypeOrdinal      int    `json:"type_ordinal"`
	JurisdictionFIPS string `json:"jurisdiction_fips"`
	GEOID            string `json:"geoid"`
	VersionEpoch     uint64 `json:"version_epoch"`
	Encoded          string `json:"encoded"`
}

type wireManifest struct {
	ExpectedCounts      map[string]map[string]int `json:"expected_counts"`
	ActualCounts        map[string]map[string]int `json:"actual_counts"`
	Discrepancies       []CountDiscrepancy        `json:"discrepancies"`
	AuthoritySummary    map[string]int            `json:"authority_summary"`
	VersionEpoch        uint64                    `json:"version_epoch"`
	HashConstantsDigest string                    `json:"hash_constants_digest"`
	BuildTimestamp      string                    `json:"build_timestamp"` // RFC3339, UTC
}

type wireSnapshot struct {
	Version      string       `json:"version"`
	BuiltAt      string       `json:"built_at"` // RFC3339, UTC
	LeafCount    int          `json:"leaf_count"`
	SortedLeaves []wireLeaf   `json:"sorted_leaves"`
	MerkleLevels [][]string  `json:"merkle_levels"`
	Root         string       `json:"root"`
	Manifest     wireManifest `json:"manifest"`
}

// Snapshot is the assembled Atlas snapshot: sorted leaves, the full
// Merkle tree, the root, and the manifest.
type Snapshot struct {
	Version      string
	BuiltAt      time.Time
	LeafCount    int
	SortedLeaves []Leaf
	MerkleLevels [][]hash.Element
	Root         hash.Element
	Manifest     Manifest
}

// Build runs the full C12 pipeline: encode every boundary to a leaf,
// sort canonically, build the Poseidon Merkle tree, and assemble the
// manifest against registry.
func Build(h *hash.Hasher, boundaries []*boundary.Boundary, registry []validation.RegistryEntry, versionEpoch uint64, builtAt time.Time) (*Snapshot, error) {
	if len(boundaries) == 0 {
		return nil, fmt.Errorf("atlasbuild: cannot build a snapshot from zero boundaries")
	}

	leaves := make([]Leaf, 0, len(boundaries))
	for _, b := range boundaries {
		leaf, err := EncodeLeaf(h, b, versionEpoch)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	SortLeaves(leaves)

	encoded := make([]hash.Element, len(leaves))
	for i, l := range leaves {
		encoded[i] = l.Encoded
	}

	tree, err := BuildTree(h, encoded)
	if err != nil {
		return nil, fmt.Errorf("atlasbuild: build merkle tree: %w", err)
	}

	constantsDigest := hex.EncodeToString(func() []byte { d := hash.ParamsDigest(); return d[:] }())
	manifest := BuildManifest(boundaries, registry, versionEpoch, constantsDigest, builtAt.UTC())

	return &Snapshot{
		Version:      SnapshotVersion,
		BuiltAt:      builtAt.UTC(),
		LeafCount:    len(leaves),
		SortedLeaves: leaves,
		MerkleLevels: tree.Levels(),
		Root:         tree.Root(),
		Manifest:     manifest,
	}, nil
}

// toWire converts s into its JSON-serializable shadow form.
func (s *Snapshot) toWire() wireSnapshot {
	wireLeaves := make([]wireLeaf, len(s.SortedLeaves))
	for i, l := range s.SortedLeaves {
		wireLeaves[i] = wireLeaf{
			BoundaryID:       l.BoundaryID,
			TypeOrdinal:      l.TypeOrdinal,
			JurisdictionFIPS: l.JurisdictionFIPS,
			GEOID:            l.GEOID,
			VersionEpoch:     l.VersionEpoch,
			Encoded:          hash.ToHexBE(l.Encoded),
		}
	}

	levels := make([][]string, len(s.MerkleLevels))
	for i, level := range s.MerkleLevels {
		row := make([]string, len(level))
		for j, e := range level {
			row[j] = hash.ToHexBE(e)
		}
		levels[i] = row
	}

	return wireSnapshot{
		Version:      s.Version,
		BuiltAt:      s.BuiltAt.Format(time.RFC3339),
		LeafCount:    s.LeafCount,
		SortedLeaves: wireLeaves,
		MerkleLevels: levels,
		Root:         hash.ToHexBE(s.Root),
		Manifest: wireManifest{
			ExpectedCounts:      s.Manifest.ExpectedCounts,
			ActualCounts:        s.Manifest.ActualCounts,
			Discrepancies:       s.Manifest.Discrepancies,
			AuthoritySummary:    s.Manifest.AuthoritySummary,
			VersionEpoch:        s.Manifest.VersionEpoch,
			HashConstantsDigest: s.Manifest.HashConstantsDigest,
			BuildTimestamp:      s.Manifest.BuildTimestamp.Format(time.RFC3339),
		},
	}
}

// Serialize returns s's canonical content-addressed JSON encoding via
// commitment.MarshalCanonical: keys are sorted and every field element
// is rendered through hash.ToHexBE, so two builds from identical
// inputs and constants produce byte-identical output.
func (s *Snapshot) Serialize() ([]byte, error) {
	data, err := commitment.MarshalCanonical(s.toWire())
	if err != nil {
		return nil, fmt.Errorf("atlasbuild: serialize snapshot: %w", err)
	}
	return data, nil
}

// Digest returns the content digest of s's canonical serialization —
// the value the snapshot file is addressed by.
func (s *Snapshot) Digest() (string, error) {
	data, err := s.Serialize()
	if err != nil {
		return "", err
	}
	return commitment.HashBytes(data), nil
}

// Deserialize is Serialize's inverse: it parses a snapshot file's
// canonical JSON back into a Snapshot, re-deriving every field element
// from its hex interchange form. This is how the Atlas server and
// offline tooling load a previously published snapshot from disk.
func Deserialize(data []byte) (*Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("atlasbuild: parse snapshot json: %w", err)
	}

	builtAt, err := time.Parse(time.RFC3339, wire.BuiltAt)
	if err != nil {
		return nil, fmt.Errorf("atlasbuild: parse built_at: %w", err)
	}
	root, err := hash.FromHexBE(wire.Root)
	if err != nil {
		return nil, fmt.Errorf("atlasbuild: parse root: %w", err)
	}

	leaves := make([]Leaf, len(wire.SortedLeaves))
	for i, wl := range wire.SortedLeaves {
		encoded, err := hash.FromHexBE(wl.Encoded)
		if err != nil {
			return nil, fmt.Errorf("atlasbuild: parse leaf %d encoded element: %w", i, err)
		}
		leaves[i] = Leaf{
			BoundaryID:       wl.BoundaryID,
			TypeOrdinal:      wl.TypeOrdinal,
			JurisdictionFIPS: wl.JurisdictionFIPS,
			GEOID:            wl.GEOID,
			VersionEpoch:     wl.VersionEpoch,
			Encoded:          encoded,
		}
	}

	levels := make([][]hash.Element, len(wire.MerkleLevels))
	for i, row := range wire.MerkleLevels {
		level := make([]hash.Element, len(row))
		for j, hexStr := range row {
			e, err := hash.FromHexBE(hexStr)
			if err != nil {
				return nil, fmt.Errorf("atlasbuild: parse merkle level %d element %d: %w", i, j, err)
			}
			level[j] = e
		}
		levels[i] = level
	}

	buildTimestamp, err := time.Parse(time.RFC3339, wire.Manifest.BuildTimestamp)
	if err != nil {
		return nil, fmt.Errorf("atlasbuild: parse manifest build_timestamp: %w", err)
	}

	return &Snapshot{
		Version:      wire.Version,
		BuiltAt:      builtAt,
		LeafCount:    wire.LeafCount,
		SortedLeaves: leaves,
		MerkleLevels: levels,
		Root:         root,
		Manifest: Manifest{
			ExpectedCounts:      wire.Manifest.ExpectedCounts,
			ActualCounts:        wire.Manifest.ActualCounts,
			Discrepancies:       wire.Manifest.Discrepancies,
			AuthoritySummary:    wire.Manifest.AuthoritySummary,
			VersionEpoch:        wire.Manifest.VersionEpoch,
			HashConstantsDigest: wire.Manifest.HashConstantsDigest,
			BuildTimestamp:      buildTimestamp,
		},
	}, nil
}
