// Copyright 2025 Shadow Atlas Project
//
// Atlas serving & proof engine (C13): lookup(point|address), the
// verify_proof bottom-up hash_pair walk, and the proof_for_action
// calldata-validation pass the browser Halo2 prover's output goes
// through before being handed to pkg/onchain.

package serving

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shadowatlas/atlas/pkg/atlasbuild"
	"github.com/shadowatlas/atlas/pkg/boundary"
	atlascrypto "github.com/shadowatlas/atlas/pkg/crypto"
	"github.com/shadowatlas/atlas/pkg/hash"
	"github.com/shadowatlas/atlas/pkg/resolver"
	"github.com/shadowatlas/atlas/pkg/runtime"
)

var (
	ErrNoSnapshot      = errors.New("serving: no snapshot loaded")
	ErrBoundaryNoProof = errors.New("serving: resolved boundary has no corresponding leaf in the loaded snapshot")
)

// LookupResult is lookup(point|address)'s return value: the matched
// boundary resolution plus the Merkle inclusion proof for its leaf in
// the currently loaded snapshot.
type LookupResult struct {
	Resolution resolver.Resolution
	Proof      *atlasbuild.MerkleProof
	Root       hash.Element
}

// Server holds the loaded snapshot, its rebuilt Merkle tree, and the
// resolver pipeline lookup(point|address) is built from. Swapping in a
// new snapshot (SetSnapshot) is how the server picks up a newly
// published atlas version without a restart.
type Server struct {
	rt       *runtime.AtlasRuntime
	resolver *resolver.Resolver
	metrics  *Metrics
	logger   *log.Logger

	snapMu   sync.RWMutex
	snapshot *atlasbuild.Snapshot
	tree     *atlasbuild.Tree
	leafIdx  map[string]int // Boundary.ID -> index into snapshot.SortedLeaves
}

// New constructs a Server. The snapshot may be nil initially and set
// later via SetSnapshot once the first atlas build completes.
func New(rt *runtime.AtlasRuntime, res *resolver.Resolver, metrics *Metrics) *Server {
	return &Server{
		rt:       rt,
		resolver: res,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[Serving] ", log.LstdFlags),
	}
}

// SetSnapshot installs snap as the server's active atlas, rebuilding
// its Merkle tree and boundary->leaf-index map. Calling this is how an
// already-running server adopts a newly published, quorum-attested
// snapshot.
func (s *Server) SetSnapshot(snap *atlasbuild.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("serving: cannot install a nil snapshot")
	}

	encoded := make([]hash.Element, len(snap.SortedLeaves))
	idx := make(map[string]int, len(snap.SortedLeaves))
	for i, leaf := range snap.SortedLeaves {
		encoded[i] = leaf.Encoded
		idx[leaf.BoundaryID] = i
	}

	tree, err := atlasbuild.BuildTree(s.rt.Hasher, encoded)
	if err != nil {
		return fmt.Errorf("serving: rebuild merkle tree from snapshot: %w", err)
	}

	s.snapMu.Lock()
	s.snapshot = snap
	s.tree = tree
	s.leafIdx = idx
	s.snapMu.Unlock()
	return nil
}

// snapshotView returns a consistent, concurrency-safe view of the
// currently loaded snapshot, tree, and leaf index for a single lookup.
func (s *Server) snapshotView() (*atlasbuild.Snapshot, *atlasbuild.Tree, map[string]int) {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot, s.tree, s.leafIdx
}

// Lookup resolves address against the current boundary data and
// returns the finest-precision match paired with its inclusion proof
// in the currently loaded snapshot. now is the instant to evaluate
// boundary and cache validity against.
func (s *Server) Lookup(ctx context.Context, address string, allowedTypes []boundary.Type, now time.Time) (*LookupResult, error) {
	return s.lookup(ctx, allowedTypes, now,
		func() bool { return s.resolver.CacheHit(address, now) },
		func() ([]resolver.Resolution, error) { return s.resolver.Resolve(ctx, address, allowedTypes, now) },
	)
}

// LookupPoint is Lookup's point-addressed counterpart: spec.md §4.13
// names lookup(point | address) as one operation with two input forms,
// and a coordinate pair skips geocoding entirely rather than being
// round-tripped through an address string.
func (s *Server) LookupPoint(ctx context.Context, pt boundary.Point, allowedTypes []boundary.Type, now time.Time) (*LookupResult, error) {
	return s.lookup(ctx, allowedTypes, now,
		func() bool { return s.resolver.PointCacheHit(pt, now) },
		func() ([]resolver.Resolution, error) { return s.resolver.ResolvePoint(ctx, pt, allowedTypes, now) },
	)
}

func (s *Server) lookup(ctx context.Context, allowedTypes []boundary.Type, now time.Time, cacheHitCheck func() bool, resolve func() ([]resolver.Resolution, error)) (*LookupResult, error) {
	start := time.Now()
	cacheHit := false
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveQuery(time.Since(start), cacheHit)
		}
	}()

	snapshot, tree, leafIdx := s.snapshotView()
	if snapshot == nil {
		return nil, ErrNoSnapshot
	}

	cacheHit = cacheHitCheck()
	resolutions, err := resolve()
	if err != nil {
		return nil, err
	}
	best := resolutions[0]

	leafIndex, ok := leafIdx[best.BoundaryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoundaryNoProof, best.BoundaryID)
	}

	proof, err := tree.GenerateProof(leafIndex)
	if err != nil {
		return nil, fmt.Errorf("serving: generate proof for %s: %w", best.BoundaryID, err)
	}

	return &LookupResult{
		Resolution: best,
		Proof:      proof,
		Root:       tree.Root(),
	}, nil
}

// VerifyProof re-derives the root from proof and reports whether it
// matches declaredRoot, per spec.md's "folded == declared_root"
// definition. This is a pure function of the Hasher and doesn't touch
// the server's loaded snapshot, so a client-supplied proof can be
// checked against any previously published root, not only the
// currently loaded one.
func VerifyProof(h *hash.Hasher, proof *atlasbuild.MerkleProof, declaredRoot hash.Element) (bool, error) {
	return atlasbuild.VerifyProof(h, proof, declaredRoot)
}

// ActionProofRequest is proof_for_action's input: the browser prover's
// Halo2 proof, already encoded as Groth16/BN254 calldata, plus two of
// the public inputs it binds (identity commitment and action id).
type ActionProofRequest struct {
	IdentityCommitment string // hex-encoded field element
	ActionID           string // hex-encoded field element
	Calldata           []byte
}

// ActionProofResult is proof_for_action's validated output: the
// decoded proof, ready to forward to pkg/onchain's verify_and_consume.
type ActionProofResult struct {
	Proof *atlascrypto.ActionProof
}

// ProofForAction decodes and shape-validates a browser-generated Halo2
// proof's calldata before it is forwarded on-chain. It does not itself
// verify the proof cryptographically — the circuit and the gate
// contract's verifier are the authorities on that, per spec.md's
// non-goal of implementing Halo2 natively — it only rejects malformed
// calldata and out-of-field public inputs so a bad request fails fast
// locally instead of burning gas on a revert.
func (s *Server) ProofForAction(req ActionProofRequest) (*ActionProofResult, error) {
	proof, err := atlascrypto.DecodeCalldata(req.Calldata)
	if err != nil {
		return nil, fmt.Errorf("serving: decode action proof calldata: %w", err)
	}
	if err := atlascrypto.ValidateShape(proof); err != nil {
		return nil, fmt.Errorf("serving: validate action proof shape: %w", err)
	}

	identityCommitment, err := parseHexBigInt(req.IdentityCommitment)
	if err != nil {
		return nil, fmt.Errorf("serving: parse identity_commitment: %w", err)
	}
	actionID, err := parseHexBigInt(req.ActionID)
	if err != nil {
		return nil, fmt.Errorf("serving: parse action_id: %w", err)
	}
	if proof.IdentityCommitment.Cmp(identityCommitment) != 0 {
		return nil, fmt.Errorf("serving: proof's bound identity_commitment does not match the request")
	}
	if proof.ActionID.Cmp(actionID) != 0 {
		return nil, fmt.Errorf("serving: proof's bound action_id does not match the request")
	}

	return &ActionProofResult{Proof: proof}, nil
}

func parseHexBigInt(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("serving: %q is not a valid hex-encoded integer", s)
	}
	return v, nil
}
