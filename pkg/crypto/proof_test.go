// Copyright 2025 Shadow Atlas Project

package crypto

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

func sampleProof() *ActionProof {
	_, _, g1Gen, g2Gen := bn254.Generators()

	var a, c bn254.G1Affine
	a.ScalarMultiplication(&g1Gen, big.NewInt(3))
	c.ScalarMultiplication(&g1Gen, big.NewInt(5))

	var b bn254.G2Affine
	b.ScalarMultiplication(&g2Gen, big.NewInt(7))

	ax, ay := new(big.Int), new(big.Int)
	a.X.BigInt(ax)
	a.Y.BigInt(ay)
	cx, cy := new(big.Int), new(big.Int)
	c.X.BigInt(cx)
	c.Y.BigInt(cy)
	bx0, bx1, by0, by1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	b.X.A0.BigInt(bx0)
	b.X.A1.BigInt(bx1)
	b.Y.A0.BigInt(by0)
	b.Y.A1.BigInt(by1)

	return &ActionProof{
		A:                  [2]*big.Int{ax, ay},
		B:                  [2][2]*big.Int{{bx0, bx1}, {by0, by1}},
		C:                  [2]*big.Int{cx, cy},
		IdentityCommitment: big.NewInt(111),
		ActionID:           big.NewInt(222),
		Nullifier:          big.NewInt(333),
	}
}

func TestEncodeDecodeCalldata_RoundTrips(t *testing.T) {
	proof := sampleProof()

	calldata, err := proof.EncodeCalldata()
	if err != nil {
		t.Fatalf("EncodeCalldata: %v", err)
	}

	decoded, err := DecodeCalldata(calldata)
	if err != nil {
		t.Fatalf("DecodeCalldata: %v", err)
	}
	if decoded.IdentityCommitment.Cmp(proof.IdentityCommitment) != 0 {
		t.Fatal("identity commitment did not round-trip")
	}
	if decoded.ActionID.Cmp(proof.ActionID) != 0 {
		t.Fatal("action id did not round-trip")
	}
	if decoded.Nullifier.Cmp(proof.Nullifier) != 0 {
		t.Fatal("nullifier did not round-trip")
	}
	if decoded.A[0].Cmp(proof.A[0]) != 0 || decoded.A[1].Cmp(proof.A[1]) != 0 {
		t.Fatal("proof.a did not round-trip")
	}
}

func TestValidateShape_AcceptsValidPoints(t *testing.T) {
	if err := ValidateShape(sampleProof()); err != nil {
		t.Fatalf("expected valid shape, got %v", err)
	}
}

func TestValidateShape_RejectsOffCurvePoint(t *testing.T) {
	proof := sampleProof()
	proof.A[1] = new(big.Int).Add(proof.A[1], big.NewInt(1)) // corrupt Y, point now off-curve
	if err := ValidateShape(proof); err == nil {
		t.Fatal("expected an error for an off-curve point")
	}
}

func TestValidateShape_RejectsOutOfFieldPublicInput(t *testing.T) {
	proof := sampleProof()
	proof.ActionID = new(big.Int).Lsh(big.NewInt(1), 300) // far beyond the BN254 scalar field
	if err := ValidateShape(proof); err == nil {
		t.Fatal("expected an error for an out-of-field public input")
	}
}

func TestValidateShape_RejectsNilProof(t *testing.T) {
	if err := ValidateShape(nil); err == nil {
		t.Fatal("expected an error for a nil proof")
	}
}

func TestRoundTripGroth16Proof_AcceptsWellFormedProof(t *testing.T) {
	proof := sampleProof()
	if _, err := roundTripGroth16Proof(proof.toGroth16Proof()); err != nil {
		t.Fatalf("expected gnark's own codec to accept a well-formed proof, got %v", err)
	}
}
