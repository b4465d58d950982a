// Package facilitator implements the payment verification and settlement
// engine: canonical envelope checks, EIP-712 digest construction, ECDSA
// signer recovery, replay protection through a pluggable nonce store, and
// delegation of the on-chain transfer to a settlement collaborator.
package facilitator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/x402-foundation/x402-facilitator/pkg/evm"
	"github.com/x402-foundation/x402-facilitator/pkg/noncestore"
	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

// Engine runs the verification pipeline and settlement for exact EVM
// payments. It owns the nonce store exclusively; nothing else mutates it.
type Engine struct {
	nonces  noncestore.Store
	settler Settler
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over the given nonce store and settlement
// collaborator. The settler may be nil for verify-only deployments.
func NewEngine(nonces noncestore.Store, settler Settler, opts ...Option) *Engine {
	engine := &Engine{
		nonces:  nonces,
		settler: settler,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Verify runs the full verification pipeline over a payment payload and
// the requirements it must satisfy.
//
// Policy failures return a response with IsValid false and a reason slug;
// protocol failures (envelope mismatch, malformed fields, unsupported
// scheme or network) return a *PaymentError instead, which the HTTP
// surface maps to a 4xx. A verified nonce is spent even if the caller
// never settles.
func (e *Engine) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	return e.verify(ctx, payload, requirements, true)
}

// verify is the shared pipeline. requireFreshNonce distinguishes /verify
// (a spent nonce is a replay) from /settle (the nonce was legitimately
// reserved by the preceding verify of the same payment; the token
// contract still enforces on-chain uniqueness).
func (e *Engine) verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements, requireFreshNonce bool) (*types.VerifyResponse, error) {
	if err := e.checkEnvelope(payload, requirements); err != nil {
		return nil, err
	}

	auth := payload.Payload.Authorization
	payer := strings.ToLower(auth.From)

	// Temporal validity.
	validAfter, err := parseTimestamp(auth.ValidAfter)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, fmt.Sprintf("invalid validAfter: %s", auth.ValidAfter), nil)
	}
	validBefore, err := parseTimestamp(auth.ValidBefore)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, fmt.Sprintf("invalid validBefore: %s", auth.ValidBefore), nil)
	}

	now := e.now().Unix()
	if now < validAfter || now > validBefore {
		return invalid(ReasonAuthorizationExpired, payer), nil
	}

	// Replay protection. The CAS spends the nonce on any plausible
	// authorization; a reservation is never rolled back.
	if !types.ValidNonce(auth.Nonce) {
		return nil, NewPaymentError(ErrCodeInvalidPayment, "nonce must be 32 bytes of 0x-prefixed hex", nil)
	}

	inserted, err := e.nonces.MarkIfAbsent(ctx, auth.Nonce)
	if err != nil {
		return nil, NewPaymentError(ErrCodeNonceStoreUnavailable, err.Error(), nil)
	}
	if !inserted && requireFreshNonce {
		return invalid(ReasonNonceAlreadyUsed, payer), nil
	}

	// Amount sufficiency.
	value, err := parseAmount(auth.Value)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, fmt.Sprintf("invalid authorization value: %s", auth.Value), nil)
	}
	required, err := parseAmount(requirements.MaxAmountRequired)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, fmt.Sprintf("invalid maxAmountRequired: %s", requirements.MaxAmountRequired), nil)
	}
	if value.Cmp(required) < 0 {
		return invalid(ReasonInsufficientAmount, payer), nil
	}

	// Recipient match, lowercase on both sides.
	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return invalid(ReasonRecipientMismatch, payer), nil
	}

	// Signature over the EIP-712 digest must recover the claimed payer.
	network, err := types.GetNetworkConfig(payload.Network)
	if err != nil {
		return nil, NewPaymentError(ErrCodeUnsupportedNetwork, err.Error(), nil)
	}

	tokenName, tokenVersion := network.USDC.Name, network.USDC.Version
	if requirements.Extra != nil && requirements.Extra.Name != "" && requirements.Extra.Version != "" {
		tokenName, tokenVersion = requirements.Extra.Name, requirements.Extra.Version
	}

	asset := requirements.Asset
	if asset == "" {
		asset = network.USDC.Address
	}

	digest, err := evm.HashTransferWithAuthorization(auth, network.ChainID, asset, tokenName, tokenVersion)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidPayment, err.Error(), nil)
	}

	signature, err := evm.HexToBytes(payload.Payload.Signature)
	if err != nil || len(signature) != evm.SignatureLength {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	recovered, err := evm.RecoverSigner(digest, signature)
	if err != nil || recovered != payer {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	return &types.VerifyResponse{
		IsValid: true,
		Payer:   &payer,
	}, nil
}

// checkEnvelope enforces the hard protocol preconditions: version,
// scheme and network agreement, supported scheme and network, and the
// presence of the exact payload.
func (e *Engine) checkEnvelope(payload *types.PaymentPayload, requirements *types.PaymentRequirements) error {
	if payload == nil || requirements == nil {
		return NewPaymentError(ErrCodeInvalidPayment, "payment payload and requirements are required", nil)
	}
	if payload.X402Version != types.X402Version {
		return NewPaymentError(ErrCodeInvalidPayment, fmt.Sprintf("unsupported x402 version: %d", payload.X402Version), nil)
	}
	if payload.Payload == nil || payload.Payload.Authorization == nil {
		return NewPaymentError(ErrCodeInvalidPayment, "missing exact scheme payload", nil)
	}
	if payload.Scheme != requirements.Scheme {
		return NewPaymentError(ErrCodeSchemeMismatch, fmt.Sprintf("payload scheme %q does not match requirements scheme %q", payload.Scheme, requirements.Scheme), nil)
	}
	if payload.Scheme != types.SchemeExact {
		return NewPaymentError(ErrCodeUnsupportedScheme, fmt.Sprintf("unsupported scheme: %s", payload.Scheme), nil)
	}
	if payload.Network != requirements.Network {
		return NewPaymentError(ErrCodeNetworkMismatch, fmt.Sprintf("payload network %q does not match requirements network %q", payload.Network, requirements.Network), nil)
	}
	if !types.IsSupportedNetwork(payload.Network) {
		return NewPaymentError(ErrCodeUnsupportedNetwork, fmt.Sprintf("unsupported network: %s", payload.Network), nil)
	}

	return nil
}

func invalid(reason, payer string) *types.VerifyResponse {
	return &types.VerifyResponse{
		IsValid:       false,
		InvalidReason: &reason,
		Payer:         &payer,
	}
}

func parseTimestamp(s string) (int64, error) {
	ts, ok := new(big.Int).SetString(s, 10)
	if !ok || ts.Sign() < 0 || !ts.IsInt64() {
		return 0, fmt.Errorf("not a unix timestamp: %s", s)
	}

	return ts.Int64(), nil
}

// parseAmount parses a decimal integer string as an unsigned 128-bit
// value.
func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("not an unsigned integer: %s", s)
	}
	if amount.BitLen() > 128 {
		return nil, fmt.Errorf("amount exceeds 128 bits: %s", s)
	}

	return amount, nil
}
