package authPayload

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/ethereum/go-ethereum/crypto"
)

// paddedAddressLength is the hex length of a 32 byte ABI word
const paddedAddressLength = 64

// PadAddress lowercases address, drops the 0x prefix and left-pads it with '0' to 64 hex characters
func PadAddress(address string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(address))
	trimmed = strings.TrimPrefix(trimmed, "0x")

	if trimmed == "" {
		return "", session.NewError(session.KindEncoding, session.StageDigest, fmt.Errorf("session address is empty"))
	}
	if len(trimmed) > paddedAddressLength {
		return "", session.NewError(session.KindEncoding, session.StageDigest,
			fmt.Errorf("session address %q is longer than %d hex characters", address, paddedAddressLength))
	}

	return strings.Repeat("0", paddedAddressLength-len(trimmed)) + trimmed, nil
}

// SessionDigest is keccak256 (legacy Keccak, not SHA3-256) of the session address
// encoded as a 32 byte word. Both payload signatures are over this digest.
func SessionDigest(address string) ([32]byte, error) {
	var digest [32]byte

	padded, err := PadAddress(address)
	if err != nil {
		return digest, err
	}

	word, err := hex.DecodeString(padded)
	if err != nil {
		return digest, session.NewError(session.KindEncoding, session.StageDigest,
			fmt.Errorf("session address %q is not valid hex: %w", address, err))
	}
	if len(word) != 32 {
		return digest, session.NewError(session.KindEncoding, session.StageDigest,
			fmt.Errorf("encoded session address is %d bytes, expected 32", len(word)))
	}

	copy(digest[:], crypto.Keccak256(word))
	return digest, nil
}
