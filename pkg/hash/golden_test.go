// Copyright 2025 Shadow Atlas Project
//
// Golden-vector determinism tests. These vectors are pinned externally
// (per spec.md §4.1, "golden vectors are never regenerated from either
// implementation") and checked in as literal constants, not derived from
// this package's own output.

package hash

import (
	"math/big"
	"testing"
)

// goldenHashPair12345_67890 is the externally-pinned expected output of
// hash_pair(12345, 67890), used identically by the circuit, the WASM
// prover, and this native implementation.
const goldenHashPair12345_67890 = "0x1a52400b0566a6d2eb81fcf923da131e3f0db95e6e618ed4041225c78530a49a"

func TestHashPair_GoldenVector(t *testing.T) {
	h, err := NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	var a, b Element
	a.SetBigInt(big.NewInt(12345))
	b.SetBigInt(big.NewInt(67890))

	got, err := h.HashPair(a, b)
	if err != nil {
		t.Fatalf("HashPair: %v", err)
	}

	gotHex := ToHexBE(got)
	if gotHex != goldenHashPair12345_67890 {
		t.Fatalf("hash_pair(12345, 67890) = %s, want pinned vector %s", gotHex, goldenHashPair12345_67890)
	}
}

func TestHashPair_Deterministic(t *testing.T) {
	h, err := NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	var a, b Element
	a.SetBigInt(big.NewInt(111))
	b.SetBigInt(big.NewInt(222))

	first, err := h.HashPair(a, b)
	if err != nil {
		t.Fatalf("HashPair: %v", err)
	}
	second, err := h.HashPair(a, b)
	if err != nil {
		t.Fatalf("HashPair: %v", err)
	}
	if !first.Equal(&second) {
		t.Fatalf("hash_pair is not deterministic: %s != %s", first.String(), second.String())
	}
}

func TestHashPair_OrderSensitive(t *testing.T) {
	h, err := NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	var a, b Element
	a.SetBigInt(big.NewInt(1))
	b.SetBigInt(big.NewInt(2))

	ab, _ := h.HashPair(a, b)
	ba, _ := h.HashPair(b, a)
	if ab.Equal(&ba) {
		t.Fatalf("hash_pair(a, b) must not equal hash_pair(b, a)")
	}
}

func TestVerifyParams_Succeeds(t *testing.T) {
	if err := VerifyParams(); err != nil {
		t.Fatalf("VerifyParams: %v", err)
	}
}
