package session

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SessionKey is an ephemeral secp256k1 keypair owned by the caller for one session.
// Hex values are 0x-prefixed; the address is compared case-insensitively.
type SessionKey struct {
	PrivateKeyHex            string `json:"privateKey,omitempty"`
	UncompressedPublicKeyHex string `json:"publicKey"`
	Address                  string `json:"address"`
}

// NewSessionKey generates a fresh session keypair
func NewSessionKey() (*SessionKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return sessionKeyFromECDSA(key), nil
}

// NewSessionKeyFromHex rebuilds a session key from its private key
func NewSessionKeyFromHex(privateKeyHex string) (*SessionKey, error) {
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, NewError(KindInvalidKey, StageSessionKey, err)
	}
	return sessionKeyFromECDSA(key), nil
}

func sessionKeyFromECDSA(key *ecdsa.PrivateKey) *SessionKey {
	return &SessionKey{
		PrivateKeyHex:            hexutil.Encode(crypto.FromECDSA(key)),
		UncompressedPublicKeyHex: hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)),
		Address:                  crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// PublicKey returns the uncompressed public key, deriving it from the private key when it was not set
func (k *SessionKey) PublicKey() (string, error) {
	if k == nil {
		return "", NewError(KindInvalidKey, StageSessionPk, fmt.Errorf("session key is nil"))
	}
	if k.UncompressedPublicKeyHex != "" {
		pub, err := hexutil.Decode("0x" + messageSigner.TrimHexPrefix(k.UncompressedPublicKeyHex))
		if err != nil {
			return "", NewError(KindInvalidKey, StageSessionPk, fmt.Errorf("invalid public key hex: %w", err))
		}
		if _, err := crypto.UnmarshalPubkey(pub); err != nil {
			return "", NewError(KindInvalidKey, StageSessionPk, fmt.Errorf("invalid uncompressed public key: %w", err))
		}
		return hexutil.Encode(pub), nil
	}
	if k.PrivateKeyHex == "" {
		return "", NewError(KindInvalidKey, StageSessionPk, fmt.Errorf("session key has neither a public nor a private key"))
	}
	key, err := parsePrivateKey(k.PrivateKeyHex)
	if err != nil {
		return "", NewError(KindInvalidKey, StageSessionPk, err)
	}
	return hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)), nil
}

// DropPrivateKey forgets the hex private key held by this struct. Go strings
// cannot be wiped; the key bytes themselves are zeroed by the signer built
// from it (InMemoryMessageSigner.Zero).
func (k *SessionKey) DropPrivateKey() {
	if k == nil {
		return
	}
	k.PrivateKeyHex = ""
}

func parsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(messageSigner.TrimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
