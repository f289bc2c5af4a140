// Copyright 2025 Shadow Atlas Project
//
// Minimal ABCI application for the atlas-root quorum attestation
// chain: each transaction is one validator's signed attestation to a
// freshly built snapshot root (pkg/attestation/strategy), and a root
// becomes publishable once its accumulated attesting weight crosses
// the configured threshold. This is the off-chain analogue to the
// on-chain gate's historical_roots grace period: it stops a single
// compromised or buggy builder node from publishing a bad root
// unilaterally.

package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/shadowatlas/atlas/pkg/attestation/strategy"
	"github.com/shadowatlas/atlas/pkg/commitment"
)

// rootState tracks the attestations collected so far for one
// candidate root hash.
type rootState struct {
	message      *strategy.AttestationMessage
	attestations map[string]*strategy.Attestation // validatorID -> attestation
	totalWeight  int64
	quorumMet    bool
}

// AtlasApp implements abcitypes.Application for the quorum
// attestation chain.
type AtlasApp struct {
	logger *log.Logger
	mu     sync.RWMutex

	verifier           strategy.AttestationStrategy
	threshold          *strategy.ThresholdConfig
	validatorSetWeight int64

	latestHeight   int64
	lastCommitHash []byte

	roots map[string]*rootState // root_hash (hex) -> state

	// pendingTxs accumulates attestation bytes seen in the current
	// block between FinalizeBlock and Commit.
	pendingTxs []*strategy.Attestation
}

// NewAtlasApp creates a new ABCI application. verifier is used only to
// check signatures (CheckTx/FinalizeBlock never sign); threshold
// defaults to strategy.DefaultThresholdConfig if nil. validatorSetWeight
// is the total voting power of the known validator set (one per
// registered attestation peer, unless weighted otherwise), against
// which each root's accumulated weight is compared.
func NewAtlasApp(verifier strategy.AttestationStrategy, threshold *strategy.ThresholdConfig, validatorSetWeight int64) *AtlasApp {
	if threshold == nil {
		threshold = strategy.DefaultThresholdConfig()
	}
	return &AtlasApp{
		logger:             log.New(log.Writer(), "[AtlasApp] ", log.LstdFlags),
		verifier:           verifier,
		threshold:          threshold,
		validatorSetWeight: validatorSetWeight,
		roots:              make(map[string]*rootState),
	}
}

// Info returns application information.
func (app *AtlasApp) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	return &abcitypes.ResponseInfo{
		Data:             "Shadow Atlas quorum attestation chain",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  app.latestHeight,
		LastBlockAppHash: app.lastCommitHash,
	}, nil
}

// InitChain initializes the application.
func (app *AtlasApp) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	app.logger.Printf("initializing quorum attestation chain %s", req.ChainId)
	return &abcitypes.ResponseInitChain{}, nil
}

// CheckTx validates an incoming attestation transaction before it's
// accepted into the mempool.
func (app *AtlasApp) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	att, err := app.decodeAndVerify(ctx, req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}, nil
	}

	return &abcitypes.ResponseCheckTx{
		Code:      0,
		GasWanted: 1,
		GasUsed:   1,
		Log:       fmt.Sprintf("attestation accepted for root %s from validator %s", att.Message.RootHash, att.ValidatorID),
	}, nil
}

// decodeAndVerify unmarshals tx as a strategy.Attestation, checks that
// its MessageHash is the canonical hash of its Message, and checks its
// signature against app.verifier.
func (app *AtlasApp) decodeAndVerify(ctx context.Context, tx []byte) (*strategy.Attestation, error) {
	var att strategy.Attestation
	if err := json.Unmarshal(tx, &att); err != nil {
		return nil, fmt.Errorf("invalid attestation JSON: %w", err)
	}
	if att.Message == nil || att.Message.RootHash == "" {
		return nil, fmt.Errorf("attestation missing root_hash")
	}
	if att.ValidatorID == "" {
		return nil, fmt.Errorf("attestation missing validator_id")
	}

	msgHash, err := app.verifier.ComputeMessageHash(att.Message)
	if err != nil {
		return nil, fmt.Errorf("hash attestation message: %w", err)
	}
	if msgHash != att.MessageHash {
		return nil, fmt.Errorf("attestation message does not match its signed hash")
	}

	ok, err := app.verifier.Verify(ctx, &att)
	if err != nil {
		return nil, fmt.Errorf("verify attestation: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("attestation signature invalid for validator %s", att.ValidatorID)
	}
	return &att, nil
}

// PrepareProposal accepts all queued attestation transactions as-is.
func (app *AtlasApp) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal rejects a proposed block only if it contains
// malformed attestation bytes; signature/weight checks happen at
// FinalizeBlock so the proposer's own quorum bookkeeping is used.
func (app *AtlasApp) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, tx := range req.Txs {
		var att strategy.Attestation
		if err := json.Unmarshal(tx, &att); err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// FinalizeBlock processes every attestation transaction in the block,
// folding each into its root's running tally.
func (app *AtlasApp) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.pendingTxs = app.pendingTxs[:0]
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))

	for i, tx := range req.Txs {
		att, err := app.decodeAndVerify(ctx, tx)
		if err != nil {
			txResults[i] = &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
			continue
		}

		app.recordAttestation(att)
		app.pendingTxs = append(app.pendingTxs, att)

		txResults[i] = &abcitypes.ExecTxResult{
			Code: 0,
			Log:  "attestation recorded",
			Events: []abcitypes.Event{{
				Type: "root_attestation",
				Attributes: []abcitypes.EventAttribute{
					{Key: "root_hash", Value: att.Message.RootHash},
					{Key: "validator_id", Value: att.ValidatorID},
					{Key: "version_epoch", Value: fmt.Sprintf("%d", att.Message.VersionEpoch)},
				},
			}},
		}
	}

	return &abcitypes.ResponseFinalizeBlock{TxResults: txResults}, nil
}

// recordAttestation folds att into the running tally for its root.
// Must be called with app.mu held.
func (app *AtlasApp) recordAttestation(att *strategy.Attestation) {
	state, ok := app.roots[att.Message.RootHash]
	if !ok {
		state = &rootState{
			message:      att.Message,
			attestations: make(map[string]*strategy.Attestation),
		}
		app.roots[att.Message.RootHash] = state
	}

	if _, dup := state.attestations[att.ValidatorID]; dup {
		return
	}
	weight := att.Weight
	if weight == 0 {
		weight = 1
	}
	state.attestations[att.ValidatorID] = att
	state.totalWeight += weight
	state.quorumMet = len(state.attestations) >= app.threshold.MinValidators &&
		app.threshold.IsThresholdMet(state.totalWeight, app.validatorSetWeight)
}

// Commit finalizes the block and derives the application hash from
// current quorum state.
func (app *AtlasApp) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.latestHeight++
	app.lastCommitHash = app.generateAppHash()

	app.logger.Printf("committed height %d, %d roots tracked", app.latestHeight, len(app.roots))

	retainHeight := app.latestHeight - 1000
	if retainHeight < 0 {
		retainHeight = 0
	}
	return &abcitypes.ResponseCommit{RetainHeight: retainHeight}, nil
}

// generateAppHash derives a deterministic hash of the current
// per-root quorum tallies, independent of map iteration order.
func (app *AtlasApp) generateAppHash() []byte {
	if len(app.roots) == 0 {
		return []byte("empty_attestation_state")
	}

	rootHashes := make([]string, 0, len(app.roots))
	for root := range app.roots {
		rootHashes = append(rootHashes, root)
	}
	sort.Strings(rootHashes)

	summary := make(map[string]interface{}, len(rootHashes))
	for _, root := range rootHashes {
		state := app.roots[root]
		summary[root] = map[string]interface{}{
			"total_weight": state.totalWeight,
			"quorum_met":   state.quorumMet,
			"signers":      len(state.attestations),
		}
	}

	digest, err := commitment.HashCanonical(summary)
	if err != nil {
		return []byte("hash_error")
	}
	return []byte(digest)
}

// Query answers read-only requests about quorum state.
func (app *AtlasApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	switch req.Path {
	case "/root_quorum":
		root := string(req.Data)
		state, ok := app.roots[root]
		if !ok {
			return &abcitypes.ResponseQuery{Code: 1, Log: "root not attested"}, nil
		}
		data, _ := json.Marshal(map[string]interface{}{
			"root_hash":    root,
			"total_weight": state.totalWeight,
			"quorum_met":   state.quorumMet,
			"signers":      len(state.attestations),
		})
		return &abcitypes.ResponseQuery{Code: 0, Value: data, Log: "root quorum state"}, nil

	case "/latest_height":
		return &abcitypes.ResponseQuery{Code: 0, Value: []byte(fmt.Sprintf("%d", app.latestHeight))}, nil

	default:
		return &abcitypes.ResponseQuery{Code: 2, Log: "unknown query path: " + req.Path}, nil
	}
}

// PublishableRoots returns every root hash that has crossed the
// quorum threshold, for the atlas server to consult before serving
// a newly built snapshot.
func (app *AtlasApp) PublishableRoots() []string {
	app.mu.RLock()
	defer app.mu.RUnlock()

	var out []string
	for root, state := range app.roots {
		if state.quorumMet {
			out = append(out, root)
		}
	}
	sort.Strings(out)
	return out
}

// ExtendVote and VerifyVoteExtension are unused by this application.
func (app *AtlasApp) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *AtlasApp) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

// State-sync snapshot methods are not implemented; this chain is
// small enough that new nodes replay from genesis.
func (app *AtlasApp) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *AtlasApp) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (app *AtlasApp) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *AtlasApp) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}

// GetLatestHeight returns the current committed height.
func (app *AtlasApp) GetLatestHeight() int64 {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.latestHeight
}
