package facilitator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/x402-foundation/x402-facilitator/pkg/evm"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// SettlementResult is what the blockchain collaborator reports after
// relaying a transferWithAuthorization.
type SettlementResult struct {
	TxHash        string
	Confirmations uint64
}

// Settler is the narrow blockchain settlement collaborator. The engine
// does not dictate how the outer transaction is built or signed; it only
// requires the pre-signed inner authorization to be relayed.
type Settler interface {
	SendTransferWithAuthorization(
		ctx context.Context,
		network string,
		asset string,
		authorization *types.ExactEvmPayloadAuthorization,
		signature []byte,
	) (*SettlementResult, error)
}

// Settle re-runs the verification pipeline and, if it passes, relays the
// authorization on-chain.
//
// The nonce reservation made during verification is never rolled back: a
// chain failure leaves the nonce spent and the payer must sign a fresh
// authorization. On-chain failures are reported in the response body, not
// as an error.
func (e *Engine) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	verifyResp, err := e.verify(ctx, payload, requirements, false)
	if err != nil {
		return nil, err
	}

	if !verifyResp.IsValid {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Transaction: "",
			Network:     payload.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	if e.settler == nil {
		return nil, NewPaymentError(ErrCodeSettlementFailed, "no settlement collaborator configured", nil)
	}

	signature, err := hexSignature(payload)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, err.Error(), nil)
	}

	asset := requirements.Asset
	if asset == "" {
		if asset, err = types.USDCAddress(payload.Network); err != nil {
			return nil, NewPaymentError(ErrCodeUnsupportedNetwork, err.Error(), nil)
		}
	}

	result, err := e.settler.SendTransferWithAuthorization(ctx, payload.Network, asset, payload.Payload.Authorization, signature)
	if err != nil {
		reason := fmt.Sprintf("%s: %v", ErrCodeSettlementFailed, err)
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: &reason,
			Transaction: "",
			Network:     payload.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	return &types.SettleResponse{
		Success:     true,
		Transaction: result.TxHash,
		Network:     payload.Network,
		Payer:       verifyResp.Payer,
	}, nil
}

func hexSignature(payload *types.PaymentPayload) ([]byte, error) {
	signature, err := evm.HexToBytes(payload.Payload.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	return signature, nil
}

// StubSettler fabricates a random transaction hash instead of touching a
// chain. It keeps the standalone facilitator runnable without RPC access;
// production deployments wire an EvmSettler.
type StubSettler struct{}

// SendTransferWithAuthorization returns a random 32-byte hash.
func (StubSettler) SendTransferWithAuthorization(
	_ context.Context,
	_ string,
	_ string,
	_ *types.ExactEvmPayloadAuthorization,
	_ []byte,
) (*SettlementResult, error) {
	var hash [32]byte
	if _, err := rand.Read(hash[:]); err != nil {
		return nil, fmt.Errorf("failed to generate stub hash: %w", err)
	}

	return &SettlementResult{
		TxHash:        "0x" + hex.EncodeToString(hash[:]),
		Confirmations: 1,
	}, nil
}

var _ Settler = StubSettler{}
