// Copyright 2025 Shadow Atlas Project
//
// Gate client (C14): a thin wrapper around ethclient.Client that calls
// the on-chain gate's verify_and_consume/update_root/current_root/
// is_valid_root, in the same Dial-then-abi.Pack-then-SendTransaction
// style as the teacher's pkg/ethereum.Client, generalized from a
// generic-ABI-string caller to one bound contract.

package onchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	atlascrypto "github.com/shadowatlas/atlas/pkg/crypto"
	"github.com/shadowatlas/atlas/pkg/hash"
)

// minGasPrice floors the suggested gas price, matching the teacher's 5
// Gwei floor against chains that under-report during congestion.
var minGasPrice = big.NewInt(5_000_000_000)

// Client talks to the deployed gate contract over JSON-RPC.
type Client struct {
	eth        *ethclient.Client
	contract   common.Address
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	from       common.Address
}

// NewClient dials rpcURL and binds to the gate contract at contractAddr.
// privateKeyHex is required for the write operations (verify_and_consume,
// update_root); it may be empty for a read-only client.
func NewClient(rpcURL string, chainID int64, contractAddr string, privateKeyHex string) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial %s: %w", rpcURL, err)
	}

	c := &Client{
		eth:      eth,
		contract: common.HexToAddress(contractAddr),
		chainID:  big.NewInt(chainID),
	}

	if privateKeyHex != "" {
		key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("onchain: parse private key: %w", err)
		}
		pub, ok := key.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("onchain: derive public key from private key")
		}
		c.privateKey = key
		c.from = gethcrypto.PubkeyToAddress(*pub)
	}

	return c, nil
}

// RawClient exposes the underlying ethclient.Client so a Watcher can
// share this Client's connection instead of dialing a second one.
func (c *Client) RawClient() *ethclient.Client { return c.eth }

// Health reports whether the underlying RPC endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("onchain: health check: %w", err)
	}
	return nil
}

// elementToBytes32 converts a field element to the [32]byte Go type the
// go-ethereum ABI packer requires for a bytes32 parameter — common.Hash
// has the same underlying layout but is a distinct Go type and is
// rejected by abi.Pack's type check, as the teacher's contract callers
// consistently use [32]byte rather than common.Hash for this reason.
func elementToBytes32(e hash.Element) [32]byte {
	return e.Bytes()
}

func bytes32ToElement(b [32]byte) (hash.Element, error) {
	return hash.FromHexBE(common.Bytes2Hex(b[:]))
}

// CurrentRoot calls the gate's current_root() view.
func (c *Client) CurrentRoot(ctx context.Context) (hash.Element, error) {
	out, err := c.call(ctx, "current_root")
	if err != nil {
		return hash.Element{}, err
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return hash.Element{}, fmt.Errorf("onchain: current_root returned unexpected type")
	}
	return bytes32ToElement(root)
}

// IsValidRoot calls the gate's is_valid_root(root) view: accepted when
// root equals the current registered root or is still inside the
// historical_roots grace window, per spec.md §4.14.
func (c *Client) IsValidRoot(ctx context.Context, root hash.Element) (bool, error) {
	out, err := c.call(ctx, "is_valid_root", elementToBytes32(root))
	if err != nil {
		return false, err
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("onchain: is_valid_root returned unexpected type")
	}
	return valid, nil
}

// call makes a read-only eth_call against the bound contract.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := gateABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack %s: %w", method, err)
	}
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain: call %s: %w", method, err)
	}
	out, err := gateABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack %s: %w", method, err)
	}
	return out, nil
}

// TxResult summarizes a mined gate transaction, mirroring the teacher's
// ContractCallResult shape.
type TxResult struct {
	TransactionHash string
	BlockNumber     uint64
	Success         bool
	GasUsed         uint64
}

// VerifyAndConsume calls verify_and_consume(district_root, nullifier,
// action_id, proof_bytes). proof is shape-validated locally first so a
// malformed calldata fails fast instead of burning gas on a revert; the
// contract itself remains the sole authority on cryptographic validity
// and on used_nullifiers insertion.
func (c *Client) VerifyAndConsume(ctx context.Context, districtRoot, nullifier, actionID hash.Element, proof *atlascrypto.ActionProof) (*TxResult, error) {
	if err := atlascrypto.ValidateShape(proof); err != nil {
		return nil, fmt.Errorf("onchain: reject malformed proof before submission: %w", err)
	}
	proofBytes, err := proof.EncodeCalldata()
	if err != nil {
		return nil, fmt.Errorf("onchain: encode proof calldata: %w", err)
	}

	return c.sendTx(ctx, "verify_and_consume",
		elementToBytes32(districtRoot), elementToBytes32(nullifier), elementToBytes32(actionID), proofBytes)
}

// UpdateRoot calls update_root(new_root). The contract moves the
// previously current root into historical_roots under its configured
// grace window (default 7 days per spec.md §4.14) before installing
// newRoot.
func (c *Client) UpdateRoot(ctx context.Context, newRoot hash.Element) (*TxResult, error) {
	return c.sendTx(ctx, "update_root", elementToBytes32(newRoot))
}

func (c *Client) sendTx(ctx context.Context, method string, args ...interface{}) (*TxResult, error) {
	if c.privateKey == nil {
		return nil, fmt.Errorf("onchain: no private key configured; client is read-only")
	}

	data, err := gateABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack %s: %w", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("onchain: get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("onchain: suggest gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("onchain: estimate gas for %s: %w", method, err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("onchain: sign %s tx: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("onchain: send %s tx: %w", method, err)
	}

	receipt, err := waitMined(ctx, c.eth, signed.Hash())
	if err != nil {
		return nil, fmt.Errorf("onchain: wait for %s receipt: %w", method, err)
	}

	return &TxResult{
		TransactionHash: signed.Hash().Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
		Success:         receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed:         receipt.GasUsed,
	}, nil
}

// waitMined polls for a transaction receipt, backing off between
// attempts rather than subscribing, since not every RPC endpoint this
// client talks to supports eth_subscribe.
func waitMined(ctx context.Context, eth *ethclient.Client, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
