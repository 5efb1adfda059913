package inMemoryMessageSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type InMemoryMessageSigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
	mu         sync.RWMutex
}

// Compile-time check
var _ messageSigner.IMessageSigner = (*InMemoryMessageSigner)(nil)

// NewInMemoryMessageSignerFromHex parses a secp256k1 private key; the 0x prefix is optional.
func NewInMemoryMessageSignerFromHex(privateKeyHex string, logger *zap.Logger) (*InMemoryMessageSigner, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(messageSigner.TrimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemoryMessageSigner(key, logger), nil
}

func NewInMemoryMessageSigner(key *ecdsa.PrivateKey, logger *zap.Logger) *InMemoryMessageSigner {
	return &InMemoryMessageSigner{
		logger:     logger,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (ims *InMemoryMessageSigner) Address() common.Address {
	return ims.address
}

// SignPersonalMessage signs message with the personal-sign prefix
func (ims *InMemoryMessageSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ims.mu.RLock()
	defer ims.mu.RUnlock()

	if ims.privateKey == nil {
		return nil, fmt.Errorf("signer for %s has been zeroed", ims.address.String())
	}

	raw, err := crypto.Sign(messageSigner.PersonalMessageHash(message), ims.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	ims.logger.Debug("Signed personal message",
		zap.String("address", ims.address.String()),
		zap.Int("messageLen", len(message)),
	)

	return messageSigner.ToEthereumSignature(raw)
}

// Zero wipes the private scalar. The signer is unusable afterwards.
func (ims *InMemoryMessageSigner) Zero() {
	ims.mu.Lock()
	defer ims.mu.Unlock()

	if ims.privateKey == nil {
		return
	}
	if ims.privateKey.D != nil {
		clear(ims.privateKey.D.Bits())
		ims.privateKey.D.SetInt64(0)
	}
	ims.privateKey = nil
}
