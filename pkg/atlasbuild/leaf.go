// Copyright 2025 Shadow Atlas Project
//
// Leaf encoding (C12 step 1): turns a validated Boundary into the
// canonical Poseidon-hashed leaf the Merkle tree is built over.

package atlasbuild

import (
	"crypto/sha256"
	"fmt"

	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/hash"
)

// Leaf is one encoded Atlas leaf: the plaintext fields that went into
// the hash, plus the hash itself. The plaintext fields are kept
// alongside the encoding so a lookup can reconstruct the preimage
// without re-deriving it from the source Boundary.
type Leaf struct {
	BoundaryID       string
	TypeOrdinal      int
	JurisdictionFIPS string
	GEOID            string
	VersionEpoch     uint64
	Encoded          hash.Element
}

// stringToElement maps an arbitrary string (a FIPS code, a GEOID) onto
// the BN254 scalar field by SHA256-hashing it and reducing the digest
// mod the field modulus via Element.SetBytes. This is not itself a
// Poseidon hash — it is only how a variable-length string becomes one
// fixed-size field input before HashSingle runs over it.
func stringToElement(s string) hash.Element {
	digest := sha256.Sum256([]byte(s))
	var e hash.Element
	e.SetBytes(digest[:])
	return e
}

// EncodeLeaf computes AtlasLeaf = H_single(type_ordinal, jurisdiction_fips,
// geoid, version_epoch) per spec. geoid is the boundary's stable,
// GEOID-derived ID (boundary.Boundary.ID).
func EncodeLeaf(h *hash.Hasher, b *boundary.Boundary, versionEpoch uint64) (Leaf, error) {
	if b == nil {
		return Leaf{}, fmt.Errorf("atlasbuild: cannot encode leaf for nil boundary")
	}

	var epoch hash.Element
	epoch.SetUint64(versionEpoch)

	encoded, err := h.HashSingle(
		intToElement(b.Type.PrecisionRank()),
		stringToElement(b.JurisdictionFIPS),
		stringToElement(b.ID),
		epoch,
	)
	if err != nil {
		return Leaf{}, fmt.Errorf("atlasbuild: encode leaf for %s: %w", b.ID, err)
	}

	return Leaf{
		BoundaryID:       b.ID,
		TypeOrdinal:      b.Type.PrecisionRank(),
		JurisdictionFIPS: b.JurisdictionFIPS,
		GEOID:            b.ID,
		VersionEpoch:     versionEpoch,
		Encoded:          encoded,
	}, nil
}

func intToElement(i int) hash.Element {
	var e hash.Element
	e.SetInt64(int64(i))
	return e
}
