package localKeyGenerator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner/inMemoryMessageSigner"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type keyEntry struct {
	privateKey *ecdsa.PrivateKey
	keyName    string
	aliasName  string
}

// LocalKeyGenerator keeps generated client keys in process memory
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyStore map[string]*keyEntry // keyId -> keyEntry
	mu       sync.RWMutex
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		keyStore: make(map[string]*keyEntry),
	}
}

// GenerateClientKey creates a secp256k1 key. The private key is returned so it can be stored by the caller.
func (l *LocalKeyGenerator) GenerateClientKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedClientKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate client key: %w", err)
	}

	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadPrivateKey(keyId, privateKey, keyName, aliasName); err != nil {
		return nil, err
	}

	generated, err := keyGenerator.NewGeneratedClientKey(keyId, &privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	generated.PrivateKey = hexutil.Encode(crypto.FromECDSA(privateKey))

	l.logger.Info("Generated local client key",
		zap.String("keyName", keyName),
		zap.String("aliasName", aliasName),
		zap.String("keyId", keyId),
		zap.String("address", generated.Address),
	)
	return generated, nil
}

func (l *LocalKeyGenerator) GetClientKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedClientKey, error) {
	entry, err := l.entry(keyId)
	if err != nil {
		return nil, err
	}
	return keyGenerator.NewGeneratedClientKey(keyId, &entry.privateKey.PublicKey)
}

// Signer returns an in-memory signer over a copy of the stored key
func (l *LocalKeyGenerator) Signer(ctx context.Context, keyId string) (messageSigner.IMessageSigner, error) {
	entry, err := l.entry(keyId)
	if err != nil {
		return nil, err
	}
	keyCopy, err := crypto.ToECDSA(crypto.FromECDSA(entry.privateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to copy key %s: %w", keyId, err)
	}
	return inMemoryMessageSigner.NewInMemoryMessageSigner(keyCopy, l.logger), nil
}

func (l *LocalKeyGenerator) entry(keyId string) (*keyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, exists := l.keyStore[keyId]
	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}
	return entry, nil
}

// LoadPrivateKey adds an existing key to the store
func (l *LocalKeyGenerator) LoadPrivateKey(keyId string, privateKey *ecdsa.PrivateKey, keyName string, aliasName string) error {
	if privateKey == nil {
		return fmt.Errorf("private key cannot be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}
	l.keyStore[keyId] = &keyEntry{
		privateKey: privateKey,
		keyName:    keyName,
		aliasName:  aliasName,
	}
	return nil
}

// LoadPrivateKeyFromHex loads a hex private key; the 0x prefix is optional
func (l *LocalKeyGenerator) LoadPrivateKeyFromHex(keyId string, privateKeyHex string, keyName string, aliasName string) error {
	key, err := crypto.HexToECDSA(messageSigner.TrimHexPrefix(privateKeyHex))
	if err != nil {
		return fmt.Errorf("failed to parse private key from hex: %w", err)
	}
	return l.LoadPrivateKey(keyId, key, keyName, aliasName)
}

// Zero wipes every stored private scalar and empties the store
func (l *LocalKeyGenerator) Zero() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for keyId, entry := range l.keyStore {
		if entry.privateKey != nil && entry.privateKey.D != nil {
			clear(entry.privateKey.D.Bits())
			entry.privateKey.D.SetInt64(0)
		}
		delete(l.keyStore, keyId)
	}
}
