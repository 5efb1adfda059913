package persistence

import (
	"context"
	"fmt"
	"time"
)

// ErrStoreClosed is returned by every operation after Close
var ErrStoreClosed = fmt.Errorf("persistence layer is closed")

// INonceStore records session nonces that have been accepted so a payload can
// be consumed at most once. All implementations must be thread-safe.
type INonceStore interface {
	// MarkUsed atomically records nonce as consumed until expiresAt.
	// Returns false (and no error) when the nonce was already consumed.
	// A nonce whose expiresAt is in the past is rejected with an error.
	MarkUsed(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)

	// IsUsed reports whether nonce has been consumed and has not yet expired.
	IsUsed(ctx context.Context, nonce string) (bool, error)

	// Close cleanly shuts down the store. Idempotent.
	Close() error

	// HealthCheck returns nil if the store is operational.
	HealthCheck() error
}

// TTLUntil converts an absolute expiry into a positive TTL
func TTLUntil(now time.Time, expiresAt time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return 0, fmt.Errorf("nonce expiry %s is not in the future", expiresAt.UTC().Format(time.RFC3339))
	}
	return ttl, nil
}

// ValidateNonce rejects empty nonces before they reach a backend
func ValidateNonce(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("nonce cannot be empty")
	}
	return nil
}
