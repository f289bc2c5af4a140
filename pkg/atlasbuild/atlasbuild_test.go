// Copyright 2025 Shadow Atlas Project

package atlasbuild

import (
	"fmt"
	"testing"
	"time"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/hash"
	"github.com/shadowatlas/atlas/pkg/validation"
)

func mustHasher(t *testing.T) *hash.Hasher {
	t.Helper()
	h, err := hash.NewHasher()
	if err != nil {
		t.Fatalf("hash.NewHasher: %v", err)
	}
	return h
}

func testBoundary(id string, typ boundary.Type, jurisdictionFIPS string, authority boundary.AuthorityLevel) *boundary.Boundary {
	return &boundary.Boundary{
		ID:               id,
		Type:             typ,
		Name:             "Test " + id,
		Jurisdiction:     "Testville",
		JurisdictionFIPS: jurisdictionFIPS,
		ValidFrom:        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Provenance: boundary.Provenance{
			SourceKind:     boundary.SourceGeoJSON,
			AuthorityLevel: authority,
		},
	}
}

func TestEncodeLeaf_DeterministicForSameInputs(t *testing.T) {
	h := mustHasher(t)
	b := testBoundary("0612345-ward-01", boundary.TypeCouncilDistrict, "06", boundary.AuthorityMunicipal)

	l1, err := EncodeLeaf(h, b, 1)
	if err != nil {
		t.Fatalf("EncodeLeaf: %v", err)
	}
	l2, err := EncodeLeaf(h, b, 1)
	if err != nil {
		t.Fatalf("EncodeLeaf: %v", err)
	}
	if !l1.Encoded.Equal(&l2.Encoded) {
		t.Fatal("expected identical leaf encodings for identical inputs")
	}
}

func TestEncodeLeaf_DiffersByVersionEpoch(t *testing.T) {
	h := mustHasher(t)
	b := testBoundary("0612345-ward-01", boundary.TypeCouncilDistrict, "06", boundary.AuthorityMunicipal)

	l1, _ := EncodeLeaf(h, b, 1)
	l2, _ := EncodeLeaf(h, b, 2)
	if l1.Encoded.Equal(&l2.Encoded) {
		t.Fatal("expected different leaf encodings across version epochs")
	}
}

func TestSortLeaves_OrdersByTypeThenJurisdictionThenGEOID(t *testing.T) {
	leaves := []Leaf{
		{TypeOrdinal: 1, JurisdictionFIPS: "36", GEOID: "b"},
		{TypeOrdinal: 0, JurisdictionFIPS: "06", GEOID: "z"},
		{TypeOrdinal: 1, JurisdictionFIPS: "06", GEOID: "a"},
	}
	SortLeaves(leaves)

	want := []string{"z", "a", "b"}
	for i, g := range want {
		if leaves[i].GEOID != g {
			t.Fatalf("position %d: got GEOID %q, want %q (full order: %+v)", i, leaves[i].GEOID, g, leaves)
		}
	}
}

func buildTestSnapshot(t *testing.T, n int) *Snapshot {
	t.Helper()
	h := mustHasher(t)

	var boundaries []*boundary.Boundary
	for i := 0; i < n; i++ {
		boundaries = append(boundaries, testBoundary(
			fmt.Sprintf("0612345-ward-%02d", i),
			boundary.TypeCouncilDistrict,
			"06",
			boundary.AuthorityMunicipal,
		))
	}
	registry := []validation.RegistryEntry{
		{State: "CA", Layer: "council_district", ExpectedCount: n, StateFIPS: "06"},
	}

	snap, err := Build(h, boundaries, registry, 1, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func TestBuild_DeterministicSerialization(t *testing.T) {
	s1 := buildTestSnapshot(t, 7) // odd count exercises zero-leaf padding
	s2 := buildTestSnapshot(t, 7)

	d1, err := s1.Serialize()
	if err != nil {
		t.Fatalf("Serialize s1: %v", err)
	}
	d2, err := s2.Serialize()
	if err != nil {
		t.Fatalf("Serialize s2: %v", err)
	}
	if string(d1) != string(d2) {
		t.Fatal("expected byte-identical serialization from identical inputs")
	}

	digest1, err := s1.Digest()
	if err != nil {
		t.Fatalf("Digest s1: %v", err)
	}
	digest2, err := s2.Digest()
	if err != nil {
		t.Fatalf("Digest s2: %v", err)
	}
	if digest1 != digest2 {
		t.Fatalf("expected identical digests, got %s and %s", digest1, digest2)
	}
}

func TestBuild_EvenLeafCountAlsoDeterministic(t *testing.T) {
	s1 := buildTestSnapshot(t, 8)
	s2 := buildTestSnapshot(t, 8)

	digest1, _ := s1.Digest()
	digest2, _ := s2.Digest()
	if digest1 != digest2 {
		t.Fatalf("expected identical digests for even leaf count, got %s and %s", digest1, digest2)
	}
}

func TestTree_ProofRoundTrip(t *testing.T) {
	h := mustHasher(t)
	snap := buildTestSnapshot(t, 5)

	leaves := make([]hash.Element, len(snap.SortedLeaves))
	for i, l := range snap.SortedLeaves {
		leaves[i] = l.Encoded
	}
	tree, err := BuildTree(h, leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	for i := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("GenerateProof(%d): %v", i, err)
		}
		ok, err := VerifyProof(h, proof, tree.Root())
		if err != nil {
			t.Fatalf("VerifyProof(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("proof for leaf %d failed to verify against the tree root", i)
		}
	}
}

func TestTree_ProofFailsAgainstWrongRoot(t *testing.T) {
	h := mustHasher(t)
	snap := buildTestSnapshot(t, 5)

	leaves := make([]hash.Element, len(snap.SortedLeaves))
	for i, l := range snap.SortedLeaves {
		leaves[i] = l.Encoded
	}
	tree, err := BuildTree(h, leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}

	wrongRoot, err := h.HashPair(tree.Root(), tree.Root())
	if err != nil {
		t.Fatalf("HashPair: %v", err)
	}
	ok, err := VerifyProof(h, proof, wrongRoot)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if ok {
		t.Fatal("expected proof verification to fail against an incorrect root")
	}
}

func TestDeserialize_RoundTripsSerialize(t *testing.T) {
	original := buildTestSnapshot(t, 6)

	data, err := original.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	restored, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if !restored.Root.Equal(&original.Root) {
		t.Fatal("restored root does not match original")
	}
	if restored.LeafCount != original.LeafCount {
		t.Fatalf("leaf count = %d, want %d", restored.LeafCount, original.LeafCount)
	}
	if len(restored.SortedLeaves) != len(original.SortedLeaves) {
		t.Fatalf("sorted leaves length = %d, want %d", len(restored.SortedLeaves), len(original.SortedLeaves))
	}
	for i := range original.SortedLeaves {
		if restored.SortedLeaves[i].BoundaryID != original.SortedLeaves[i].BoundaryID {
			t.Fatalf("leaf %d boundary id mismatch: got %s, want %s", i, restored.SortedLeaves[i].BoundaryID, original.SortedLeaves[i].BoundaryID)
		}
		if !restored.SortedLeaves[i].Encoded.Equal(&original.SortedLeaves[i].Encoded) {
			t.Fatalf("leaf %d encoded element mismatch", i)
		}
	}

	restoredDigest, err := restored.Digest()
	if err != nil {
		t.Fatalf("Digest restored: %v", err)
	}
	originalDigest, err := original.Digest()
	if err != nil {
		t.Fatalf("Digest original: %v", err)
	}
	if restoredDigest != originalDigest {
		t.Fatalf("digests differ after round trip: %s vs %s", restoredDigest, originalDigest)
	}
}

func TestBuildManifest_FlagsCountMismatch(t *testing.T) {
	boundaries := []*boundary.Boundary{
		testBoundary("0612345", boundary.TypeCounty, "06", boundary.AuthorityStateGIS),
	}
	registry := []validation.RegistryEntry{
		{State: "CA", Layer: "county", ExpectedCount: 58, StateFIPS: "06"},
	}
	manifest := BuildManifest(boundaries, registry, 1, "deadbeef", time.Now())
	if len(manifest.Discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d: %+v", len(manifest.Discrepancies), manifest.Discrepancies)
	}
	if manifest.Discrepancies[0].Delta != 1-58 {
		t.Fatalf("unexpected delta: %+v", manifest.Discrepancies[0])
	}
}
