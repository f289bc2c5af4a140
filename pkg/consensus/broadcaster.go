// Copyright 2025 Shadow Atlas Project
//
// Broadcaster submits a validator's signed root attestation to the
// quorum attestation chain over CometBFT's own RPC, rather than a
// hand-rolled P2P layer: CometBFT's mempool gossip already propagates
// the transaction to every peer validator, and ABCIQuery reads back
// the accumulated quorum state AtlasApp tracks.

package consensus

import (
	"context"
	"encoding/json"
	"fmt"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/shadowatlas/atlas/pkg/attestation/strategy"
)

// Broadcaster submits attestations to a CometBFT RPC endpoint and
// queries quorum status back from AtlasApp via ABCIQuery.
type Broadcaster struct {
	client *rpchttp.HTTP
}

// NewBroadcaster dials a CometBFT node's RPC endpoint (e.g.
// "tcp://localhost:26657").
func NewBroadcaster(rpcURL string) (*Broadcaster, error) {
	client, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("consensus: dial cometbft rpc %s: %w", rpcURL, err)
	}
	return &Broadcaster{client: client}, nil
}

// Submit signs message with strategy and broadcasts the resulting
// attestation to the network, returning once it's accepted into the
// mempool (not once it's committed).
func (b *Broadcaster) Submit(ctx context.Context, s strategy.AttestationStrategy, message *strategy.AttestationMessage) (*strategy.Attestation, error) {
	att, err := s.Sign(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("consensus: sign attestation: %w", err)
	}

	tx, err := json.Marshal(att)
	if err != nil {
		return nil, fmt.Errorf("consensus: marshal attestation: %w", err)
	}

	result, err := b.client.BroadcastTxSync(ctx, cmttypes.Tx(tx))
	if err != nil {
		return nil, fmt.Errorf("consensus: broadcast attestation: %w", err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("consensus: attestation rejected by mempool: %s", result.Log)
	}

	return att, nil
}

// rootQuorumResult mirrors the JSON AtlasApp.Query's "/root_quorum"
// path returns.
type rootQuorumResult struct {
	RootHash    string `json:"root_hash"`
	TotalWeight int64  `json:"total_weight"`
	QuorumMet   bool   `json:"quorum_met"`
	Signers     int    `json:"signers"`
}

// QuorumStatus queries the current attestation tally for rootHash.
func (b *Broadcaster) QuorumStatus(ctx context.Context, rootHash string) (quorumMet bool, signers int, totalWeight int64, err error) {
	resp, err := b.client.ABCIQuery(ctx, "/root_quorum", cmtbytes.HexBytes(rootHash))
	if err != nil {
		return false, 0, 0, fmt.Errorf("consensus: query root quorum: %w", err)
	}
	if resp.Response.Code != 0 {
		return false, 0, 0, nil
	}

	var result rootQuorumResult
	if err := json.Unmarshal(resp.Response.Value, &result); err != nil {
		return false, 0, 0, fmt.Errorf("consensus: decode root quorum response: %w", err)
	}
	return result.QuorumMet, result.Signers, result.TotalWeight, nil
}
