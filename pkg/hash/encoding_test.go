// Copyright 2025 Shadow Atlas Project

package hash

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func TestLERoundTrip(t *testing.T) {
	cases := []int64{0, 1, 12345, 67890, -1}
	for _, c := range cases {
		var e Element
		if c < 0 {
			e.SetBigInt(new(big.Int).Sub(fr.Modulus(), big.NewInt(1)))
		} else {
			e.SetBigInt(big.NewInt(c))
		}
		le := ToLE(e)
		back := FromLE(le)
		if !back.Equal(&e) {
			t.Fatalf("LE round-trip mismatch for %d: got %s want %s", c, back.String(), e.String())
		}
	}
}

func TestHexBERoundTrip(t *testing.T) {
	var e Element
	e.SetBigInt(big.NewInt(987654321))
	hexStr := ToHexBE(e)
	back, err := FromHexBE(hexStr)
	if err != nil {
		t.Fatalf("FromHexBE: %v", err)
	}
	if !back.Equal(&e) {
		t.Fatalf("hex round-trip mismatch: got %s want %s", back.String(), e.String())
	}
}

func TestFromHexBE_AcceptsNoPrefix(t *testing.T) {
	withPrefix, _ := FromHexBE("0x01")
	withoutPrefix, _ := FromHexBE("01")
	if !withPrefix.Equal(&withoutPrefix) {
		t.Fatalf("expected identical parse with/without 0x prefix")
	}
}

func TestLEAndBEAreByteReversals(t *testing.T) {
	var e Element
	e.SetBigInt(big.NewInt(256))
	le := ToLE(e)
	be := e.Bytes()
	for i := 0; i < 32; i++ {
		if le[i] != be[31-i] {
			t.Fatalf("LE/BE not byte-reversed at index %d: le=%x be=%x", i, le, be)
		}
	}
}
