package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// X402Version is the protocol version this module speaks.
const X402Version = 1

// SchemeExact is the only payment scheme supported: EIP-3009
// transferWithAuthorization with a fixed amount.
const SchemeExact = "exact"

// DefaultMaxTimeoutSeconds is applied when requirements omit maxTimeoutSeconds.
const DefaultMaxTimeoutSeconds = 60

// PaymentRequirements represents what a resource server demands for access.
// JSON field names are normative wire format (camelCase).
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds,omitempty"`
	Asset             string         `json:"asset"`
	OutputSchema      map[string]any `json:"outputSchema,omitempty"`

	// Extra carries scheme-specific metadata. For USDC it holds the
	// EIP-712 domain parameters {name, version}.
	Extra *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra contains token metadata required for EIP-712 digest
// construction.
type PaymentExtra struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// PaymentPayload represents the decoded payment a client submits through
// the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int              `json:"x402Version"`
	Scheme      string           `json:"scheme"`
	Network     string           `json:"network"`
	Payload     *ExactEvmPayload `json:"payload"`
}

// ExactEvmPayload is the scheme-specific payload for "exact": a 65-byte
// hex signature plus the EIP-3009 authorization tuple it signs.
type ExactEvmPayload struct {
	Signature     string                        `json:"signature"`
	Authorization *ExactEvmPayloadAuthorization `json:"authorization"`
}

// ExactEvmPayloadAuthorization is the EIP-3009 TransferWithAuthorization
// tuple. Value, ValidAfter and ValidBefore are decimal integer strings;
// Nonce is 32 bytes of 0x-prefixed hex.
type ExactEvmPayloadAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// VerifyResponse represents the response from the verify endpoint.
type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason,omitempty"`
	Payer         *string `json:"payer,omitempty"`
}

// SettleResponse represents the response from the settle endpoint.
// Transaction is a 0x-prefixed 32-byte transaction hash on success and
// the empty string on failure.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason *string `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction"`
	Network     string  `json:"network"`
	Payer       *string `json:"payer,omitempty"`
}

// EncodeToBase64String encodes the settle response for the
// X-PAYMENT-RESPONSE header a resource server echoes to the client.
func (s *SettleResponse) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode settle response: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// EncodeToBase64String encodes the payment payload for the X-PAYMENT header.
func (p *PaymentPayload) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment payload: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentPayloadFromBase64 decodes the ASCII value of an X-PAYMENT
// header into a PaymentPayload. Standard base64 only; no URL-safe variant.
// Addresses inside the authorization are normalised to lowercase hex so
// that checksum casing never causes a mismatch downstream.
func DecodePaymentPayloadFromBase64(encoded string) (*PaymentPayload, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 string: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(decodedBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}

	if payload.Payload == nil || payload.Payload.Authorization == nil {
		return nil, fmt.Errorf("payment payload is missing the exact scheme payload")
	}

	payload.X402Version = X402Version
	payload.Normalize()

	return &payload, nil
}

// Normalize lowercases all hex address and nonce fields in place.
func (p *PaymentPayload) Normalize() {
	if p.Payload == nil {
		return
	}
	p.Payload.Signature = strings.ToLower(p.Payload.Signature)
	if auth := p.Payload.Authorization; auth != nil {
		auth.From = strings.ToLower(auth.From)
		auth.To = strings.ToLower(auth.To)
		auth.Nonce = strings.ToLower(auth.Nonce)
	}
}

// SetUSDCInfo sets the USDC EIP-712 domain parameters in Extra. Mainnet
// deployments use the name "USD Coin", testnets use "USDC"; both are
// domain version 2.
func (p *PaymentRequirements) SetUSDCInfo(isTestnet bool) {
	name := "USD Coin"
	if isTestnet {
		name = "USDC"
	}

	p.Extra = &PaymentExtra{
		Name:    name,
		Version: "2",
	}
}

// FacilitatorConfig configures a facilitator client: base URL, optional
// request timeout, and an optional factory producing per-endpoint-class
// auth headers (keyed "verify", "settle", "supported", "list").
type FacilitatorConfig struct {
	URL               string
	Timeout           func() time.Duration
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// VerifyRequest represents the request body for the facilitator /verify
// endpoint.
type VerifyRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest represents the request body for the facilitator /settle
// endpoint.
type SettleRequest struct {
	X402Version         int                  `json:"x402Version"`
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SupportedKind represents a supported scheme-network pair from the
// /supported endpoint.
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// SupportedResponse represents the response from the /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// HealthResponse represents the response from the /health endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	X402Version int    `json:"x402Version"`
}
