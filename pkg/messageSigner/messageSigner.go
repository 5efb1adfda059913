package messageSigner

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of an r || s || v signature
	SignatureLength = 65

	// recoveryIdOffset is added to the raw recovery id (0/1) in personal-sign signatures
	recoveryIdOffset = 27
)

// IMessageSigner signs messages using the personal-sign convention:
// keccak256("\x19Ethereum Signed Message:\n" || len(message) || message).
// Signatures are 65 bytes with v in {27, 28}.
type IMessageSigner interface {
	Address() common.Address
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// PersonalMessageHash returns the hash that is actually signed for message.
func PersonalMessageHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// EncodeSignature renders a signature as 0x-prefixed hex.
func EncodeSignature(sig []byte) string {
	encoded := hexutil.Encode(sig)
	if !strings.HasPrefix(encoded, "0x") {
		return "0x" + encoded
	}
	return encoded
}

// TrimHexPrefix drops a leading 0x or 0X
func TrimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodeSignature parses a hex signature with or without the 0x prefix.
func DecodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hexutil.Decode("0x" + TrimHexPrefix(sig))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sigBytes) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLength, len(sigBytes))
	}
	return sigBytes, nil
}

// RecoverPersonalMessageSigner recovers the address that produced a personal-sign signature over message.
func RecoverPersonalMessageSigner(message []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLength, len(signature))
	}

	// crypto.SigToPub expects the raw 0/1 recovery id
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= recoveryIdOffset {
		sig[64] -= recoveryIdOffset
	}

	pubKey, err := crypto.SigToPub(PersonalMessageHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// ToEthereumSignature converts a raw [R || S || recid] signature to v in {27, 28}.
func ToEthereumSignature(raw []byte) ([]byte, error) {
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length: expected %d bytes, got %d", SignatureLength, len(raw))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, raw)
	if sig[64] < recoveryIdOffset {
		sig[64] += recoveryIdOffset
	}
	return sig, nil
}
