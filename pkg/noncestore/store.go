// Package noncestore provides replay protection for EIP-3009 authorization
// nonces. A nonce is spent the first time MarkIfAbsent succeeds for it;
// every later attempt observes it as already present.
package noncestore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend I/O failures. Callers map it to a 500
// rather than a payment rejection: no verification may silently succeed
// without a nonce commit.
var ErrUnavailable = errors.New("nonce store unavailable")

// DefaultKeyPrefix is the key prefix durable backends use for nonce
// entries.
const DefaultKeyPrefix = "x402:nonce:"

// DefaultTTL bounds durable storage under adversarial nonce churn. It is
// far past any plausible validBefore window, so eviction never re-enables
// a live authorization.
const DefaultTTL = 24 * time.Hour

// Store is the nonce store contract. Implementations must be safe for
// concurrent use.
//
// MarkIfAbsent is the only permitted mutation in the verification hot
// path: it is a compound check-and-set, so two concurrent verifications
// of the same nonce can never both observe it as fresh. Sequencing a
// plain Has then a mark is forbidden.
type Store interface {
	// MarkIfAbsent records the nonce as seen if it was not already.
	// Returns true if this call inserted the nonce, false if it was
	// already present. Backend failures return ErrUnavailable-wrapped
	// errors and leave the nonce state undefined.
	MarkIfAbsent(ctx context.Context, nonce string) (bool, error)

	// Has reports whether MarkIfAbsent has previously succeeded for the
	// nonce. Not used in the hot path.
	Has(ctx context.Context, nonce string) (bool, error)

	// Remove deletes the nonce record. Best-effort cleanup for tests and
	// operational tooling.
	Remove(ctx context.Context, nonce string) error
}
