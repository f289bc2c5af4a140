// Copyright 2025 Shadow Atlas Project
//
// Thin Groth16/BN254 proof-shape adapter (C13/C14). The Halo2 circuit
// itself is an external oracle — the browser prover generates the
// proof, and the gate contract's verifier is the authority on whether
// it is cryptographically valid. What this package does is decode the
// circuit's canonical calldata encoding and check it parses as a
// well-formed Groth16/BN254 proof (three curve points plus the public
// inputs this system binds) before it is ever forwarded on-chain,
// mirroring the teacher's bls_zkp.BLSZKProof component extraction and
// ABI packing. Shape validation additionally round-trips the decoded
// proof through gnark's own backend/groth16 BN254 codec, the same
// proof type the teacher's bls_zkp prover produces and verifies.

package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	ErrMalformedProof       = errors.New("crypto: malformed proof bytes")
	ErrPointNotOnCurve      = errors.New("crypto: proof point is not on the BN254 curve")
	ErrPublicInputOutOfField = errors.New("crypto: public input exceeds the scalar field modulus")
)

// ActionProof is the calldata shape proof_for_action binds: a
// Groth16/BN254 proof over the three public inputs spec.md §4.13 names
// (identity_commitment, action_id, and whatever the circuit's nullifier
// output is), deserialized from the browser prover's canonical
// encoding.
type ActionProof struct {
	A [2]*big.Int
	B [2][2]*big.Int
	C [2]*big.Int

	IdentityCommitment *big.Int
	ActionID           *big.Int
	Nullifier          *big.Int
}

// actionProofABI packs/unpacks ActionProof in the same layout the gate
// contract's verify_and_consume expects, following the teacher's
// mustParseABI/blsProofABI pattern in pkg/crypto/bls_zkp/prover.go.
var actionProofABI = mustParseABI(`[{
	"name": "encodeActionProof",
	"type": "function",
	"inputs": [
		{"name": "a", "type": "uint256[2]"},
		{"name": "b", "type": "uint256[2][2]"},
		{"name": "c", "type": "uint256[2]"},
		{"name": "identityCommitment", "type": "uint256"},
		{"name": "actionId", "type": "uint256"},
		{"name": "nullifier", "type": "uint256"}
	]
}]`)

func mustParseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("crypto: failed to parse embedded ABI: %v", err))
	}
	return parsed
}

// EncodeCalldata packs p into the ABI-encoded parameter list a gate
// contract's verify_and_consume(proof_bytes, ...) expects, dropping the
// 4-byte method selector so the result is pure calldata.
func (p *ActionProof) EncodeCalldata() ([]byte, error) {
	encoded, err := actionProofABI.Pack("encodeActionProof",
		[2]*big.Int{p.A[0], p.A[1]},
		[2][2]*big.Int{{p.B[0][0], p.B[0][1]}, {p.B[1][0], p.B[1][1]}},
		[2]*big.Int{p.C[0], p.C[1]},
		p.IdentityCommitment,
		p.ActionID,
		p.Nullifier,
	)
	if err != nil {
		return nil, fmt.Errorf("crypto: abi pack action proof: %w", err)
	}
	if len(encoded) < 4 {
		return nil, ErrMalformedProof
	}
	return encoded[4:], nil
}

// DecodeCalldata is EncodeCalldata's inverse: it unpacks the method's
// input arguments from calldata that carries no 4-byte selector, i.e.
// exactly what EncodeCalldata produced.
func DecodeCalldata(calldata []byte) (*ActionProof, error) {
	vals, err := actionProofABI.Methods["encodeActionProof"].Inputs.Unpack(calldata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if len(vals) != 6 {
		return nil, ErrMalformedProof
	}

	a, ok := vals[0].([2]*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}
	b, ok := vals[1].([2][2]*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}
	c, ok := vals[2].([2]*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}
	identityCommitment, ok := vals[3].(*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}
	actionID, ok := vals[4].(*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}
	nullifier, ok := vals[5].(*big.Int)
	if !ok {
		return nil, ErrMalformedProof
	}

	return &ActionProof{
		A:                  a,
		B:                  b,
		C:                  c,
		IdentityCommitment: identityCommitment,
		ActionID:           actionID,
		Nullifier:          nullifier,
	}, nil
}

// ValidateShape checks that p's curve points actually lie on BN254's G1
// (A, C) and G2 (B) and that every public input is reduced modulo the
// scalar field, without attempting to verify the proof's validity
// itself — that remains the gate contract verifier's job. This is the
// pre-flight check a server performs before forwarding calldata
// on-chain, so a malformed browser proof fails fast locally instead of
// burning gas on a revert.
func ValidateShape(p *ActionProof) error {
	if p == nil {
		return ErrMalformedProof
	}

	var g1a, g1c bn254.G1Affine
	if !setG1(&g1a, p.A[0], p.A[1]) || !g1a.IsOnCurve() {
		return fmt.Errorf("%w: proof.a", ErrPointNotOnCurve)
	}
	if !setG1(&g1c, p.C[0], p.C[1]) || !g1c.IsOnCurve() {
		return fmt.Errorf("%w: proof.c", ErrPointNotOnCurve)
	}

	var g2b bn254.G2Affine
	if !setG2(&g2b, p.B[0][0], p.B[0][1], p.B[1][0], p.B[1][1]) || !g2b.IsOnCurve() {
		return fmt.Errorf("%w: proof.b", ErrPointNotOnCurve)
	}

	modulus := ecc.BN254.ScalarField()
	for name, v := range map[string]*big.Int{
		"identity_commitment": p.IdentityCommitment,
		"action_id":           p.ActionID,
		"nullifier":           p.Nullifier,
	} {
		if v == nil || v.Sign() < 0 || v.Cmp(modulus) >= 0 {
			return fmt.Errorf("%w: %s", ErrPublicInputOutOfField, name)
		}
	}

	if _, err := roundTripGroth16Proof(p.toGroth16Proof()); err != nil {
		return fmt.Errorf("%w: gnark groth16 proof codec: %v", ErrMalformedProof, err)
	}

	return nil
}

// toGroth16Proof assembles gnark's native BN254 Groth16 proof object from
// p's three points, the same Ar/Bs/Krs shape the teacher's
// bls_zkp.reconstructProof builds before handing a proof to groth16.Verify.
// The gate contract's verifier is the actual authority on proof validity;
// this package only needs gnark's own codec to confirm the calldata is a
// proof gnark's backend/groth16 would accept before it is ever forwarded
// on-chain.
func (p *ActionProof) toGroth16Proof() *groth16bn254.Proof {
	proof := &groth16bn254.Proof{}
	proof.Ar.X.SetBigInt(p.A[0])
	proof.Ar.Y.SetBigInt(p.A[1])
	proof.Bs.X.A0.SetBigInt(p.B[0][0])
	proof.Bs.X.A1.SetBigInt(p.B[0][1])
	proof.Bs.Y.A0.SetBigInt(p.B[1][0])
	proof.Bs.Y.A1.SetBigInt(p.B[1][1])
	proof.Krs.X.SetBigInt(p.C[0])
	proof.Krs.Y.SetBigInt(p.C[1])
	return proof
}

// roundTripGroth16Proof round-trips g through gnark's canonical Groth16
// proof encoding, exercising the same WriteTo/ReadFrom codec the real
// on-chain-bound verifier path uses, so a calldata payload gnark itself
// would reject as malformed fails here rather than at the gate contract.
func roundTripGroth16Proof(g *groth16bn254.Proof) (groth16.Proof, error) {
	var buf bytes.Buffer
	if _, err := g.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	decoded := groth16.NewProof(ecc.BN254)
	if _, err := decoded.ReadFrom(&buf); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return decoded, nil
}

func setG1(p *bn254.G1Affine, x, y *big.Int) bool {
	if x == nil || y == nil {
		return false
	}
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return true
}

func setG2(p *bn254.G2Affine, x0, x1, y0, y1 *big.Int) bool {
	if x0 == nil || x1 == nil || y0 == nil || y1 == nil {
		return false
	}
	p.X.A0.SetBigInt(x0)
	p.X.A1.SetBigInt(x1)
	p.Y.A0.SetBigInt(y0)
	p.Y.A1.SetBigInt(y1)
	return true
}
