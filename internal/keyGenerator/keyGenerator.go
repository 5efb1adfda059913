package keyGenerator

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// GeneratedClientKey describes a provisioned client identity key
type GeneratedClientKey struct {
	KeyId     string `json:"keyId"`
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`

	// PrivateKey is only set for keys that live outside a KMS
	PrivateKey string `json:"privateKey,omitempty"`
}

func NewGeneratedClientKey(keyId string, publicKey *ecdsa.PublicKey) (*GeneratedClientKey, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return &GeneratedClientKey{
		KeyId:     keyId,
		Address:   crypto.PubkeyToAddress(*publicKey).Hex(),
		PublicKey: hexutil.Encode(crypto.FromECDSAPub(publicKey)),
	}, nil
}

// IKeyGenerator provisions client identity keys and hands out signers for them
type IKeyGenerator interface {
	GenerateClientKey(ctx context.Context, keyName string, aliasName string) (*GeneratedClientKey, error)
	GetClientKeyById(ctx context.Context, keyId string) (*GeneratedClientKey, error)
	Signer(ctx context.Context, keyId string) (messageSigner.IMessageSigner, error)
}
