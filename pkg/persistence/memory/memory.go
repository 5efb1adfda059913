package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/persistence"
)

// MemoryPersistence is an in-memory nonce store.
// This implementation is intended for TESTING and single-process use only.
//
// Consumed nonces are lost when the process exits, which re-opens the replay
// window for payloads that have not expired yet.
type MemoryPersistence struct {
	mu sync.Mutex

	// nonce -> expiry
	nonces map[string]time.Time

	now    func() time.Time
	closed bool
}

var _ persistence.INonceStore = (*MemoryPersistence)(nil)

// NewMemoryPersistence creates a new in-memory nonce store.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Fprintln(os.Stderr, "⚠️  WARNING: Using in-memory nonce store - CONSUMED NONCES WILL BE LOST ON RESTART")
	fmt.Fprintln(os.Stderr, "⚠️  This should ONLY be used for testing. Use the redis or badger nonce store in production")

	return &MemoryPersistence{
		nonces: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (m *MemoryPersistence) MarkUsed(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	if err := persistence.ValidateNonce(nonce); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrStoreClosed
	}

	now := m.now()
	if _, err := persistence.TTLUntil(now, expiresAt); err != nil {
		return false, err
	}

	if expiry, exists := m.nonces[nonce]; exists && now.Before(expiry) {
		return false, nil
	}

	m.nonces[nonce] = expiresAt
	m.pruneLocked(now)
	return true, nil
}

func (m *MemoryPersistence) IsUsed(ctx context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrStoreClosed
	}

	expiry, exists := m.nonces[nonce]
	return exists && m.now().Before(expiry), nil
}

// pruneLocked drops expired nonces; caller holds mu
func (m *MemoryPersistence) pruneLocked(now time.Time) {
	for nonce, expiry := range m.nonces {
		if !now.Before(expiry) {
			delete(m.nonces, nonce)
		}
	}
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.nonces = nil
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrStoreClosed
	}
	return nil
}
