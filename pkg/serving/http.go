// Copyright 2025 Shadow Atlas Project
//
// HTTP surface for C13: GET /lookup, GET /health, GET /metrics, plus
// POST /proof_for_action. Same http.NewServeMux + HandleFunc shape as
// the teacher's main.go wiring, not a router framework.

package serving

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shadowatlas/atlas/pkg/atlasbuild"
	"github.com/shadowatlas/atlas/pkg/boundary"
	"github.com/shadowatlas/atlas/pkg/hash"
)

var errMismatchedProofArrays = errors.New("serving: path_indices and siblings must be the same length")

// NewMux assembles the HTTP surface a production Atlas server exposes.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/lookup", s.handleLookup)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/verify_proof", s.handleVerifyProof)
	mux.HandleFunc("/proof_for_action", s.handleProofForAction)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

type lookupResponse struct {
	BoundaryID  string   `json:"boundary_id"`
	Precision   int      `json:"precision"`
	Confidence  float64  `json:"confidence"`
	Root        string   `json:"root"`
	LeafIndex   int      `json:"leaf_index"`
	TreeSize    int      `json:"tree_size"`
	PathIndices []int    `json:"path_indices"`
	Siblings    []string `json:"siblings"`
}

// handleLookup serves GET /lookup?lat=...&lon=...&address=... per
// spec.md §4.13. lat/lon or address must be present; lat/lon take
// priority when both are given.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()

	var (
		result *LookupResult
		err    error
	)
	if latStr, lonStr := q.Get("lat"), q.Get("lon"); latStr != "" && lonStr != "" {
		lat, perr := strconv.ParseFloat(latStr, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid lat")
			return
		}
		lon, perr := strconv.ParseFloat(lonStr, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid lon")
			return
		}
		pt := boundary.Point{Lng: lon, Lat: lat}
		if !pt.Valid() {
			writeError(w, http.StatusBadRequest, "lat/lon out of range")
			return
		}
		result, err = s.LookupPoint(r.Context(), pt, nil, now)
	} else if address := q.Get("address"); address != "" {
		result, err = s.Lookup(r.Context(), address, nil, now)
	} else {
		writeError(w, http.StatusBadRequest, "one of lat/lon or address is required")
		return
	}
	if err != nil {
		writeLookupError(w, err)
		return
	}

	siblings := make([]string, len(result.Proof.Path))
	for i, node := range result.Proof.Path {
		siblings[i] = hash.ToHexBE(node.Sibling)
	}

	writeJSON(w, http.StatusOK, lookupResponse{
		BoundaryID:  result.Resolution.BoundaryID,
		Precision:   result.Resolution.Precision,
		Confidence:  result.Resolution.Confidence,
		Root:        hash.ToHexBE(result.Root),
		LeafIndex:   result.Proof.LeafIndex,
		TreeSize:    result.Proof.TreeSize,
		PathIndices: result.Proof.PathIndices(),
		Siblings:    siblings,
	})
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrBoundaryNoProof):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusNotFound, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, _, _ := s.snapshotView()
	if snapshot == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "no_snapshot"})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"leaf_count": snapshot.LeafCount,
		"root":       hash.ToHexBE(snapshot.Root),
	})
}

type verifyProofRequest struct {
	Leaf         string   `json:"leaf"`
	LeafIndex    int      `json:"leaf_index"`
	TreeSize     int      `json:"tree_size"`
	PathIndices  []int    `json:"path_indices"`
	Siblings     []string `json:"siblings"`
	DeclaredRoot string   `json:"declared_root"`
}

// handleVerifyProof serves the verify_proof(proof, declared_root) bool
// operation over HTTP, for a client that wants server-side
// verification rather than (or in addition to) verifying locally.
func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req verifyProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	proof, declaredRoot, err := decodeProofRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := VerifyProof(s.rt.Hasher, proof, declaredRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

func decodeProofRequest(req verifyProofRequest) (*atlasbuild.MerkleProof, hash.Element, error) {
	leaf, err := hash.FromHexBE(req.Leaf)
	if err != nil {
		return nil, hash.Element{}, err
	}
	declaredRoot, err := hash.FromHexBE(req.DeclaredRoot)
	if err != nil {
		return nil, hash.Element{}, err
	}
	if len(req.PathIndices) != len(req.Siblings) {
		return nil, hash.Element{}, errMismatchedProofArrays
	}

	proof := &atlasbuild.MerkleProof{
		Leaf:      leaf,
		LeafIndex: req.LeafIndex,
		TreeSize:  req.TreeSize,
	}
	for i, sibHex := range req.Siblings {
		sib, err := hash.FromHexBE(sibHex)
		if err != nil {
			return nil, hash.Element{}, err
		}
		proof.Path = append(proof.Path, atlasbuild.ProofNode{Sibling: sib, Position: atlasbuild.Position(req.PathIndices[i])})
	}
	return proof, declaredRoot, nil
}

type proofForActionRequest struct {
	IdentityCommitment string `json:"identity_commitment"`
	ActionID           string `json:"action_id"`
	Calldata           string `json:"calldata"` // hex-encoded
}

func (s *Server) handleProofForAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req proofForActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	calldata, err := hex.DecodeString(req.Calldata)
	if err != nil {
		writeError(w, http.StatusBadRequest, "calldata must be hex-encoded")
		return
	}

	result, err := s.ProofForAction(ActionProofRequest{
		IdentityCommitment: req.IdentityCommitment,
		ActionID:           req.ActionID,
		Calldata:           calldata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "accepted",
		"nullifier": "0x" + result.Proof.Nullifier.Text(16),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
