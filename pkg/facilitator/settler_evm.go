package facilitator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/x402-foundation/x402-facilitator/pkg/evm"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// transferWithAuthorizationABI is the EIP-3009 entry point with split
// v, r, s signature arguments, as deployed by USDC.
const transferWithAuthorizationABI = `[{
	"inputs": [
		{"internalType": "address", "name": "from", "type": "address"},
		{"internalType": "address", "name": "to", "type": "address"},
		{"internalType": "uint256", "name": "value", "type": "uint256"},
		{"internalType": "uint256", "name": "validAfter", "type": "uint256"},
		{"internalType": "uint256", "name": "validBefore", "type": "uint256"},
		{"internalType": "bytes32", "name": "nonce", "type": "bytes32"},
		{"internalType": "uint8", "name": "v", "type": "uint8"},
		{"internalType": "bytes32", "name": "r", "type": "bytes32"},
		{"internalType": "bytes32", "name": "s", "type": "bytes32"}
	],
	"name": "transferWithAuthorization",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const (
	settlementGasLimit  = 300000
	receiptPollInterval = time.Second
	receiptPollTimeout  = 30 * time.Second
)

// EvmSettler relays transferWithAuthorization calls through an Ethereum
// JSON-RPC endpoint, paying gas from its own account.
type EvmSettler struct {
	client      *ethclient.Client
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	chainID     *big.Int
	contractABI abi.ABI
}

// NewEvmSettler connects to the RPC endpoint and validates that its chain
// matches the expected network.
func NewEvmSettler(ctx context.Context, rpcURL string, privateKeyHex string, network string) (*EvmSettler, error) {
	networkConfig, err := types.GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Cmp(networkConfig.ChainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("RPC chain ID %s does not match network %s (%s)", chainID, network, networkConfig.ChainID)
	}

	contractABI, err := abi.JSON(strings.NewReader(transferWithAuthorizationABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &EvmSettler{
		client:      client,
		privateKey:  privateKey,
		fromAddress: crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:     chainID,
		contractABI: contractABI,
	}, nil
}

// Address returns the settlement account address.
func (s *EvmSettler) Address() string {
	return strings.ToLower(s.fromAddress.Hex())
}

// Close releases the RPC connection.
func (s *EvmSettler) Close() {
	s.client.Close()
}

// SendTransferWithAuthorization packs, signs and submits the token call,
// then waits for one confirmation.
func (s *EvmSettler) SendTransferWithAuthorization(
	ctx context.Context,
	network string,
	asset string,
	authorization *types.ExactEvmPayloadAuthorization,
	signature []byte,
) (*SettlementResult, error) {
	if len(signature) != evm.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", evm.SignatureLength, len(signature))
	}

	value, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", authorization.Value)
	}
	validAfter, ok := new(big.Int).SetString(authorization.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", authorization.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(authorization.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", authorization.ValidBefore)
	}
	nonceBytes, err := evm.HexToBytes(authorization.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return nil, fmt.Errorf("nonce must be 32 bytes of hex")
	}

	var nonce32, r32, s32 [32]byte
	copy(nonce32[:], nonceBytes)
	copy(r32[:], signature[0:32])
	copy(s32[:], signature[32:64])
	v := signature[64]
	if v < 27 {
		v += 27
	}

	data, err := s.contractABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(authorization.From),
		common.HexToAddress(authorization.To),
		value,
		validAfter,
		validBefore,
		nonce32,
		v,
		r32,
		s32,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transferWithAuthorization: %w", err)
	}

	accountNonce, err := s.client.PendingNonceAt(ctx, s.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get account nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := ethtypes.NewTransaction(
		accountNonce,
		common.HexToAddress(asset),
		big.NewInt(0),
		settlementGasLimit,
		gasPrice,
		data,
	)

	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash()
	receipt, err := s.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", txHash.Hex())
	}

	return &SettlementResult{
		TxHash:        strings.ToLower(txHash.Hex()),
		Confirmations: 1,
	}, nil
}

func (s *EvmSettler) waitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(receiptPollTimeout)
	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("transaction receipt not found after %s", receiptPollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

var _ Settler = (*EvmSettler)(nil)
