// Copyright 2025 Shadow Atlas Project
//
// Verified-event watcher: poll-and-filter over a bounded block range,
// topic-matched against the parsed ABI's event ID, the same shape as
// the teacher's pkg/anchor.EventWatcher — generalized from its seven
// CertenAnchorV3 event types down to this gate's single Verified event.

package onchain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/shadowatlas/atlas/pkg/hash"
)

// maxBlockRange caps each eth_getLogs query, matching the conservative
// free-tier-RPC range the teacher's watcher uses.
const maxBlockRange = uint64(9)

// VerifiedEvent is a decoded Verified(district_root, action_id,
// block_time) log, per spec.md §4.14 — the nullifier itself is never
// part of the event, only evidence that some action under action_id was
// gated against district_root.
type VerifiedEvent struct {
	DistrictRoot hash.Element
	ActionID     hash.Element
	BlockTime    uint64
	BlockNumber  uint64
	TxHash       common.Hash
}

// EventHandler processes one decoded VerifiedEvent.
type EventHandler func(VerifiedEvent) error

// Watcher polls the gate contract for Verified events and dispatches
// them to registered handlers.
type Watcher struct {
	eth        *ethclient.Client
	contract   common.Address
	topic      common.Hash
	pollPeriod time.Duration
	logger     *log.Logger

	mu         sync.RWMutex
	lastBlock  uint64
	handlersMu sync.RWMutex
	handlers   []EventHandler
}

// NewWatcher constructs a Watcher bound to the gate contract at
// contractAddr, starting from startBlock.
func NewWatcher(eth *ethclient.Client, contractAddr string, startBlock uint64, pollPeriod time.Duration) *Watcher {
	return &Watcher{
		eth:        eth,
		contract:   common.HexToAddress(contractAddr),
		topic:      gateABI.Events["Verified"].ID,
		pollPeriod: pollPeriod,
		lastBlock:  startBlock,
		logger:     log.New(log.Writer(), "[OnchainWatcher] ", log.LstdFlags),
	}
}

// OnVerified registers a handler invoked for every Verified event the
// watcher observes, in log order.
func (w *Watcher) OnVerified(h EventHandler) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Run polls until ctx is cancelled. It is meant to be run in its own
// goroutine by the caller.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Printf("poll failed: %v", err)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	current, err := w.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("onchain: get current block: %w", err)
	}

	w.mu.RLock()
	from := w.lastBlock + 1
	w.mu.RUnlock()
	if from > current {
		return nil
	}

	to := current
	if to-from > maxBlockRange {
		to = from + maxBlockRange
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(from)),
		ToBlock:   big.NewInt(int64(to)),
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{w.topic}},
	}

	logs, err := w.eth.FilterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("onchain: filter logs: %w", err)
	}

	for _, l := range logs {
		event, err := w.parseLog(l)
		if err != nil {
			w.logger.Printf("failed to parse Verified log at block %d: %v", l.BlockNumber, err)
			continue
		}
		w.dispatch(event)
	}

	w.mu.Lock()
	w.lastBlock = to
	w.mu.Unlock()
	return nil
}

func (w *Watcher) parseLog(l types.Log) (VerifiedEvent, error) {
	if len(l.Topics) != 3 {
		return VerifiedEvent{}, fmt.Errorf("onchain: Verified log has %d topics, want 3", len(l.Topics))
	}

	districtRoot, err := bytes32ToElement(l.Topics[1])
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("onchain: decode district_root topic: %w", err)
	}
	actionID, err := bytes32ToElement(l.Topics[2])
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("onchain: decode action_id topic: %w", err)
	}

	unpacked, err := gateABI.Unpack("Verified", l.Data)
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("onchain: unpack Verified data: %w", err)
	}
	if len(unpacked) != 1 {
		return VerifiedEvent{}, fmt.Errorf("onchain: Verified data has %d fields, want 1", len(unpacked))
	}
	blockTime, ok := unpacked[0].(*big.Int)
	if !ok {
		return VerifiedEvent{}, fmt.Errorf("onchain: Verified block_time has unexpected type")
	}

	return VerifiedEvent{
		DistrictRoot: districtRoot,
		ActionID:     actionID,
		BlockTime:    blockTime.Uint64(),
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
	}, nil
}

func (w *Watcher) dispatch(event VerifiedEvent) {
	w.handlersMu.RLock()
	defer w.handlersMu.RUnlock()
	for _, h := range w.handlers {
		if err := h(event); err != nil {
			w.logger.Printf("handler error for tx %s: %v", event.TxHash.Hex(), err)
		}
	}
}
