package facilitator

import "fmt"

// PaymentError represents a protocol or system failure, as opposed to a
// policy outcome. Policy outcomes (expired, replay, underpaid, wrong
// recipient, bad signature) are reported inside a VerifyResponse; a
// PaymentError means the request itself was unacceptable or the service
// failed.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Protocol and system error codes.
const (
	ErrCodeInvalidPayment        = "invalid_payment"
	ErrCodeSchemeMismatch        = "scheme_mismatch"
	ErrCodeNetworkMismatch       = "network_mismatch"
	ErrCodeUnsupportedScheme     = "unsupported_scheme"
	ErrCodeUnsupportedNetwork    = "unsupported_network"
	ErrCodeNonceStoreUnavailable = "nonce_store_unavailable"
	ErrCodeSettlementFailed      = "settlement_failed"
	ErrCodeUnexpected            = "unexpected"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Policy failure slugs returned in VerifyResponse.InvalidReason.
const (
	ReasonAuthorizationExpired = "authorization_expired"
	ReasonNonceAlreadyUsed     = "nonce_already_used"
	ReasonInsufficientAmount   = "insufficient_amount"
	ReasonRecipientMismatch    = "recipient_mismatch"
	ReasonInvalidSignature     = "invalid_signature"
)
