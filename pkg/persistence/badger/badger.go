package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	keyPrefixNonce       = "nonce:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	// maxConflictRetries bounds retries of a MarkUsed transaction that lost a race
	maxConflictRetries = 3
)

// BadgerPersistence is a disk-backed nonce store for single-node verifiers.
// Consumed nonces are written with the payload expiry as Badger TTL.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	now      func() time.Time
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.INonceStore = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens the database at dataPath with SyncWrites enabled.
// A background goroutine is started for value log garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger nonce store initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func nonceKey(nonce string) []byte {
	return []byte(keyPrefixNonce + nonce)
}

// MarkUsed consumes nonce until expiresAt
func (b *BadgerPersistence) MarkUsed(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	if err := persistence.ValidateNonce(nonce); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrStoreClosed
	}

	ttl, err := persistence.TTLUntil(b.now(), expiresAt)
	if err != nil {
		return false, err
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		stored := false
		err = b.db.Update(func(txn *badgerdb.Txn) error {
			_, err := txn.Get(nonceKey(nonce))
			if err == nil {
				return nil
			}
			if err != badgerdb.ErrKeyNotFound {
				return fmt.Errorf("failed to read nonce: %w", err)
			}

			entry := badgerdb.NewEntry(nonceKey(nonce), []byte(strconv.FormatInt(expiresAt.Unix(), 10))).WithTTL(ttl)
			if err := txn.SetEntry(entry); err != nil {
				return fmt.Errorf("failed to write nonce: %w", err)
			}
			stored = true
			return nil
		})
		if errors.Is(err, badgerdb.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}

		if !stored {
			b.logger.Sugar().Warnw("Nonce already consumed", "nonce", nonce)
		}
		return stored, nil
	}

	// Every retry conflicted: a concurrent writer consumed the nonce first
	return false, nil
}

func (b *BadgerPersistence) IsUsed(ctx context.Context, nonce string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrStoreClosed
	}

	used := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(nonceKey(nonce))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		used = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return used, nil
}

// Close stops background GC and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger nonce store closed")
	return nil
}

// HealthCheck verifies the database is readable
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrStoreClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
