// Copyright 2025 Shadow Atlas Project
//
// Poseidon-over-BN254 hash primitive.
//
// This is the one piece of arithmetic that must agree, byte for byte,
// across three independent execution environments: the Halo2 circuit
// (external oracle, not implemented here), the browser/WASM prover, and
// the native Atlas builder/server. This package is the native and WASM
// implementation; both are built from this same source tree, so the only
// way they could diverge is a GOOS=js build tag doing something
// different, which none of these files do.

package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	iden3poseidon "github.com/iden3/go-iden3-crypto/poseidon"
)

// Element is a BN254 scalar field element, the unit this package hashes
// and the unit every Atlas leaf, Merkle node, and circuit public input is
// expressed in.
type Element = fr.Element

// DomainTag separates structurally different preimages so that, for
// example, an Atlas leaf encoding can never collide with the pinned
// zero-leaf padding value even if the underlying field values happen to
// coincide. hash_pair itself is untagged: the circuit's Merkle combiner
// is plain poseidon(a, b), and the golden vector pinned against it
// (spec.md §4.1's hash_pair(12345, 67890)) is produced the same way, so
// this package must match that shape rather than inventing its own.
type DomainTag uint64

const (
	// TagAtlasLeaf domain-separates AtlasLeaf encoding (see atlasbuild.Leaf).
	TagAtlasLeaf DomainTag = 2
	// TagZeroPad is hashed with itself to produce the pinned zero-leaf used
	// to pad odd levels of the Merkle tree.
	TagZeroPad DomainTag = 3
)

// pinnedParamsDigestHex is the hard-coded digest of the parameter set this
// build was compiled against (domain tags + field modulus label). It says
// nothing about the correctness of the upstream Poseidon permutation
// (go-iden3-crypto/poseidon owns that contract) — it exists so that a
// silent change to our own domain-tag scheme can never ship without also
// updating this constant, and so a mismatch is fatal at startup rather
// than a 1-bit divergence discovered later against a circuit that still
// expects the old tags.
const pinnedParamsDigestHex = "aaff2406faaa89d3c2fdd4e2ba0f87c005ebc6407489d26d5297574714dd0fac"

// ParamsDigest recomputes the digest of this build's domain-separation
// parameters.
func ParamsDigest() [32]byte {
	h := sha256.New()
	for _, tag := range []DomainTag{TagAtlasLeaf, TagZeroPad} {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(tag >> (8 * i))
		}
		h.Write(b[:])
	}
	h.Write([]byte(fr.Modulus().String()))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyParams checks the running binary's domain-separation parameters
// against the pinned digest. Per spec, a mismatch is fatal: there is no
// degraded mode, because every downstream proof assumes these tags.
func VerifyParams() error {
	got := ParamsDigest()
	gotHex := hex.EncodeToString(got[:])
	if !strings.EqualFold(gotHex, pinnedParamsDigestHex) {
		return fmt.Errorf("hash: constant-table integrity check failed: got %s, want %s", gotHex, pinnedParamsDigestHex)
	}
	return nil
}

// Hasher is the handle through which all Poseidon hashing happens. It is
// constructed once, during AtlasRuntime bootstrap, after VerifyParams has
// already succeeded — there is deliberately no package-level hashing
// function that skips that check.
type Hasher struct{}

// NewHasher verifies the pinned constant table and returns a ready
// Hasher, or a non-nil error if the table does not match. Callers that
// want the spec's "fatal at startup, no graceful fallback" behavior
// should treat a non-nil error as unrecoverable.
func NewHasher() (*Hasher, error) {
	if err := VerifyParams(); err != nil {
		return nil, err
	}
	return &Hasher{}, nil
}

// HashFields computes the domain-separated Poseidon hash of an arbitrary
// number of field elements. It is the single operation both HashPair and
// HashSingle are built from.
func (h *Hasher) HashFields(tag DomainTag, inputs ...Element) (Element, error) {
	ints := make([]*big.Int, 0, len(inputs)+1)
	ints = append(ints, new(big.Int).SetUint64(uint64(tag)))
	for i := range inputs {
		ints = append(ints, inputs[i].BigInt(new(big.Int)))
	}
	res, err := iden3poseidon.Hash(ints)
	if err != nil {
		return Element{}, fmt.Errorf("hash: poseidon permutation: %w", err)
	}
	var out Element
	out.SetBigInt(res)
	return out, nil
}

// HashPair computes hash_pair(a, b), the Merkle tree's internal node
// combiner. This is untagged poseidon(a, b), matching the circuit's own
// combiner exactly — the externally-pinned golden vector for
// hash_pair(12345, 67890) was produced against plain 2-input Poseidon,
// with no domain-separator prepended, so adding one here would silently
// diverge from the circuit despite every test passing in isolation.
func (h *Hasher) HashPair(a, b Element) (Element, error) {
	res, err := iden3poseidon.Hash([]*big.Int{a.BigInt(new(big.Int)), b.BigInt(new(big.Int))})
	if err != nil {
		return Element{}, fmt.Errorf("hash: poseidon permutation: %w", err)
	}
	var out Element
	out.SetBigInt(res)
	return out, nil
}

// HashSingle computes hash_single over one or more field elements, used
// for AtlasLeaf encoding (see atlasbuild.Leaf) where the preimage packs
// several small values (type ordinal, FIPS code, GEOID digest, version
// epoch) into one call.
func (h *Hasher) HashSingle(inputs ...Element) (Element, error) {
	return h.HashFields(TagAtlasLeaf, inputs...)
}

// ZeroLeaf is the pinned padding value used when a Merkle level has an
// odd number of nodes. It is itself part of the build's integrity
// surface: changing it changes every root computed from an odd-sized
// leaf set.
func (h *Hasher) ZeroLeaf() (Element, error) {
	var zero Element
	return h.HashFields(TagZeroPad, zero)
}
