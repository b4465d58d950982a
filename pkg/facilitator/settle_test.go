package facilitator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-foundation/x402-facilitator/pkg/noncestore"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// recordingSettler captures the settlement call for inspection.
type recordingSettler struct {
	calls  int
	asset  string
	result *SettlementResult
	err    error
}

func (s *recordingSettler) SendTransferWithAuthorization(
	_ context.Context,
	_ string,
	asset string,
	_ *types.ExactEvmPayloadAuthorization,
	signature []byte,
) (*SettlementResult, error) {
	s.calls++
	s.asset = asset
	if len(signature) != 65 {
		return nil, fmt.Errorf("unexpected signature length %d", len(signature))
	}
	if s.err != nil {
		return nil, s.err
	}

	return s.result, nil
}

func TestSettleHappyPath(t *testing.T) {
	key, from := newTestKey(t)
	settler := &recordingSettler{
		result: &SettlementResult{TxHash: "0xabc123", Confirmations: 1},
	}
	engine := NewEngine(noncestore.NewMemoryStore(), settler)

	payload := signPayload(t, key, from, nil)

	resp, err := engine.Settle(context.Background(), payload, testRequirements())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xabc123", resp.Transaction)
	assert.Equal(t, types.NetworkBaseSepolia, resp.Network)
	require.NotNil(t, resp.Payer)
	assert.Equal(t, from, *resp.Payer)
	assert.Equal(t, 1, settler.calls)
	assert.Equal(t, testAsset, settler.asset)
}

func TestSettleAfterVerifySameNonce(t *testing.T) {
	key, from := newTestKey(t)
	settler := &recordingSettler{
		result: &SettlementResult{TxHash: "0xabc123", Confirmations: 1},
	}
	engine := NewEngine(noncestore.NewMemoryStore(), settler)

	payload := signPayload(t, key, from, nil)
	requirements := testRequirements()

	// The usual resource-server flow: verify reserves the nonce, settle
	// follows with the same payment.
	verifyResp, err := engine.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, verifyResp.IsValid)

	settleResp, err := engine.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, settleResp.Success)
}

func TestSettleInvalidPaymentDoesNotReachChain(t *testing.T) {
	key, from := newTestKey(t)
	settler := &recordingSettler{
		result: &SettlementResult{TxHash: "0xabc123", Confirmations: 1},
	}
	engine := NewEngine(noncestore.NewMemoryStore(), settler)

	payload := signPayload(t, key, from, func(a *types.ExactEvmPayloadAuthorization) {
		a.ValidBefore = fmt.Sprintf("%d", time.Now().Unix()-10)
	})

	resp, err := engine.Settle(context.Background(), payload, testRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.ErrorReason)
	assert.Equal(t, ReasonAuthorizationExpired, *resp.ErrorReason)
	assert.Empty(t, resp.Transaction)
	assert.Equal(t, 0, settler.calls)
}

func TestSettleChainFailureKeepsNonceSpent(t *testing.T) {
	key, from := newTestKey(t)
	settler := &recordingSettler{err: fmt.Errorf("rpc timeout")}
	store := noncestore.NewMemoryStore()
	engine := NewEngine(store, settler)

	payload := signPayload(t, key, from, nil)

	resp, err := engine.Settle(context.Background(), payload, testRequirements())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.ErrorReason)
	assert.Contains(t, *resp.ErrorReason, ErrCodeSettlementFailed)
	assert.Empty(t, resp.Transaction)

	// The reservation survives the chain failure: a retry with the same
	// nonce is a replay.
	has, err := store.Has(context.Background(), payload.Payload.Authorization.Nonce)
	require.NoError(t, err)
	assert.True(t, has)

	verifyResp, err := engine.Verify(context.Background(), payload, testRequirements())
	require.NoError(t, err)
	assert.False(t, verifyResp.IsValid)
	require.NotNil(t, verifyResp.InvalidReason)
	assert.Equal(t, ReasonNonceAlreadyUsed, *verifyResp.InvalidReason)
}

func TestSettleWithoutSettler(t *testing.T) {
	key, from := newTestKey(t)
	engine := NewEngine(noncestore.NewMemoryStore(), nil)

	payload := signPayload(t, key, from, nil)

	resp, err := engine.Settle(context.Background(), payload, testRequirements())
	assert.Nil(t, resp)

	var paymentErr *PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, ErrCodeSettlementFailed, paymentErr.Code)
}

func TestStubSettler(t *testing.T) {
	var stub StubSettler

	result, err := stub.SendTransferWithAuthorization(context.Background(), types.NetworkBaseSepolia, testAsset, nil, nil)
	require.NoError(t, err)
	assert.Len(t, result.TxHash, 66)
	assert.Equal(t, "0x", result.TxHash[:2])
	assert.Equal(t, uint64(1), result.Confirmations)

	second, err := stub.SendTransferWithAuthorization(context.Background(), types.NetworkBaseSepolia, testAsset, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, result.TxHash, second.TxHash)
}

func TestSettleDefaultsAssetFromNetwork(t *testing.T) {
	key, from := newTestKey(t)
	settler := &recordingSettler{
		result: &SettlementResult{TxHash: "0xabc123", Confirmations: 1},
	}
	engine := NewEngine(noncestore.NewMemoryStore(), settler)

	payload := signPayload(t, key, from, nil)
	requirements := testRequirements()
	requirements.Asset = ""

	resp, err := engine.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, testAsset, settler.asset)
}
