// Copyright 2025 Shadow Atlas Project
//
// Embedded ABI for the on-chain gate contract, in the same
// mustParseABI-at-init style the teacher uses for CertenAnchorV3EventsABI.

package onchain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// gateABIJSON describes the interface spec.md §4.14 names: district-root
// gated proof consumption, root rotation with a historical grace window,
// and the Verified event emitted on a successful verify_and_consume.
const gateABIJSON = `[
	{
		"name": "verify_and_consume",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "district_root", "type": "bytes32"},
			{"name": "nullifier", "type": "bytes32"},
			{"name": "action_id", "type": "bytes32"},
			{"name": "proof_bytes", "type": "bytes"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "update_root",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "new_root", "type": "bytes32"}],
		"outputs": []
	},
	{
		"name": "current_root",
		"type": "function",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"name": "is_valid_root",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "root", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "Verified",
		"type": "event",
		"anonymous": false,
		"inputs": [
			{"name": "district_root", "type": "bytes32", "indexed": true},
			{"name": "action_id", "type": "bytes32", "indexed": true},
			{"name": "block_time", "type": "uint256", "indexed": false}
		]
	}
]`

func mustParseGateABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(gateABIJSON))
	if err != nil {
		panic(fmt.Sprintf("onchain: failed to parse embedded gate ABI: %v", err))
	}
	return parsed
}

var gateABI = mustParseGateABI()
