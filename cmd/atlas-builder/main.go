// Copyright 2025 Shadow Atlas Project
//
// Offline atlas builder CLI (C12): reads boundaries from a JSON file
// holding an array of boundary records, runs the deterministic build pipeline, writes the resulting
// snapshot to disk, and — when a CometBFT RPC endpoint is configured —
// signs and broadcasts a quorum attestation for the new root before the
// operator calls pkg/onchain's update_root.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shadowatlas/atlas/pkg/atlasbuild"
	"github.com/shadowatlas/atlas/pkg/attestation/strategy"
	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/consensus"
	"github.com/shadowatlas/atlas/pkg/hash"
	"github.com/shadowatlas/atlas/pkg/validation"
)

func main() {
	log.SetFlags(log.LstdFlags)

	var (
		boundariesPath = flag.String("boundaries", "", "Path to a JSON file containing a []*boundary.Boundary array")
		registryPath   = flag.String("registry", "", "Path to a JSON file containing a []validation.RegistryEntry array (optional)")
		outDir         = flag.String("out", "./data/snapshots", "Directory to write the built snapshot into")
		versionEpoch   = flag.Uint64("version-epoch", 1, "Version epoch to stamp onto every encoded leaf")
		cometRPC       = flag.String("comet-rpc", "", "CometBFT RPC URL to broadcast a quorum attestation to (optional)")
		validatorID    = flag.String("validator-id", "", "Validator ID used when signing the attestation")
		validatorIndex = flag.Uint("validator-index", 0, "Validator index used when signing the attestation")
		privateKeyHex  = flag.String("private-key-hex", "", "Hex-encoded Ed25519 private key used to sign the attestation")
	)
	flag.Parse()

	if *boundariesPath == "" {
		log.Fatal("missing required -boundaries flag")
	}

	boundaries, err := loadBoundaries(*boundariesPath)
	if err != nil {
		log.Fatalf("failed to load boundaries: %v", err)
	}
	registry, err := loadRegistry(*registryPath)
	if err != nil {
		log.Fatalf("failed to load registry: %v", err)
	}

	h, err := hash.NewHasher()
	if err != nil {
		log.Fatalf("hash constant-table integrity check failed: %v", err)
	}

	builtAt := time.Now().UTC()
	snap, err := atlasbuild.Build(h, boundaries, registry, *versionEpoch, builtAt)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}
	log.Printf("built snapshot: %d leaves, root %s", snap.LeafCount, hash.ToHexBE(snap.Root))

	if len(snap.Manifest.Discrepancies) > 0 {
		log.Printf("WARNING: %d count discrepancies against the registry:", len(snap.Manifest.Discrepancies))
		for _, d := range snap.Manifest.Discrepancies {
			log.Printf("  %s/%s: expected %d, got %d (delta %d)", d.State, d.Layer, d.Expected, d.Actual, d.Delta)
		}
	}

	outPath, err := writeSnapshot(snap, *outDir, *versionEpoch)
	if err != nil {
		log.Fatalf("failed to write snapshot: %v", err)
	}
	log.Printf("wrote snapshot to %s", outPath)

	if *cometRPC == "" {
		return
	}
	if *validatorID == "" || *privateKeyHex == "" {
		log.Fatal("-comet-rpc requires -validator-id and -private-key-hex")
	}

	if err := attestAndAwaitQuorum(snap, *cometRPC, *validatorID, uint32(*validatorIndex), *privateKeyHex); err != nil {
		log.Fatalf("attestation failed: %v", err)
	}
}

func loadBoundaries(path string) ([]*boundary.Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var boundaries []*boundary.Boundary
	if err := json.Unmarshal(data, &boundaries); err != nil {
		return nil, fmt.Errorf("parse boundaries json: %w", err)
	}
	return boundaries, nil
}

func loadRegistry(path string) ([]validation.RegistryEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var registry []validation.RegistryEntry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse registry json: %w", err)
	}
	return registry, nil
}

func writeSnapshot(snap *atlasbuild.Snapshot, outDir string, versionEpoch uint64) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	data, err := snap.Serialize()
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, fmt.Sprintf("snapshot-%020d.json", versionEpoch))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// attestAndAwaitQuorum signs snap's root with an Ed25519 attestation and
// broadcasts it to the quorum attestation chain, then checks the quorum
// status once and logs whether quorum has been met.
// The caller is responsible for running this once per validator; quorum
// is reached once enough distinct validators have each done the same.
func attestAndAwaitQuorum(snap *atlasbuild.Snapshot, cometRPC, validatorID string, validatorIndex uint32, privateKeyHex string) error {
	signer, err := strategy.NewEd25519StrategyFromKeyHex(validatorID, validatorIndex, privateKeyHex)
	if err != nil {
		return fmt.Errorf("construct attestation signer: %w", err)
	}

	broadcaster, err := consensus.NewBroadcaster(cometRPC)
	if err != nil {
		return fmt.Errorf("connect to cometbft rpc: %w", err)
	}

	digest, err := snap.Digest()
	if err != nil {
		return fmt.Errorf("compute snapshot digest: %w", err)
	}

	message := &strategy.AttestationMessage{
		RootHash:       hash.ToHexBE(snap.Root),
		VersionEpoch:   snap.Manifest.VersionEpoch,
		SnapshotDigest: digest,
		LeafCount:      snap.LeafCount,
		BuiltAt:        snap.BuiltAt.Unix(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	att, err := broadcaster.Submit(ctx, signer, message)
	if err != nil {
		return fmt.Errorf("submit attestation: %w", err)
	}
	log.Printf("submitted attestation %s for root %s", att.AttestationID, message.RootHash)

	quorumMet, signers, totalWeight, err := broadcaster.QuorumStatus(ctx, message.RootHash)
	if err != nil {
		return fmt.Errorf("query quorum status: %w", err)
	}
	log.Printf("quorum status for root %s: met=%v signers=%d total_weight=%d", message.RootHash, quorumMet, signers, totalWeight)
	if !quorumMet {
		log.Printf("quorum not yet met; re-run on remaining validators or poll again once they have")
	}
	return nil
}
