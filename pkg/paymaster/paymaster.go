// Package paymaster produces and decodes the delegated authorization that lets a
// paymaster sponsor gas for a session.
//
// The authorization is the ABI encoding of
//
//	(address clientSWA, uint48 validUntil, uint48 validAfter, bytes signature)
//
// where signature is a personal-sign signature by the client key over
//
//	keccak256(abi.encode(bytes32 nonce, address clientSWA, uint48 validUntil, uint48 validAfter))
//
// and nonce is the 128-bit session nonce UUID, right-aligned in 32 bytes.
package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxUint48 is the largest timestamp representable in the encoding
const maxUint48 = 1<<48 - 1

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint48Type, _  = abi.NewType("uint48", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	hashArguments = abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint48Type}, {Type: uint48Type}}
	dataArguments = abi.Arguments{{Type: addressType}, {Type: uint48Type}, {Type: uint48Type}, {Type: bytesType}}
)

// Authorization is a decoded paymaster authorization
type Authorization struct {
	ClientSWA  common.Address
	ValidUntil time.Time
	ValidAfter time.Time
	Signature  []byte
}

type Generator struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewGenerator(logger *zap.Logger) *Generator {
	return &Generator{
		logger: logger,
		now:    time.Now,
	}
}

// Generate signs a paymaster authorization for nonce, valid from now until validUntil
func (g *Generator) Generate(
	ctx context.Context,
	clientSWA string,
	clientSigner messageSigner.IMessageSigner,
	nonce string,
	validUntil time.Time,
) (string, error) {
	if !common.IsHexAddress(clientSWA) {
		return "", fmt.Errorf("invalid client SWA address: %q", clientSWA)
	}
	if clientSigner == nil {
		return "", fmt.Errorf("client signer is nil")
	}

	validAfter := g.now().UTC().Truncate(time.Second)
	if !validUntil.After(validAfter) {
		return "", fmt.Errorf("validUntil %s is not after validAfter %s", validUntil, validAfter)
	}

	auth := &Authorization{
		ClientSWA:  common.HexToAddress(clientSWA),
		ValidUntil: validUntil.UTC().Truncate(time.Second),
		ValidAfter: validAfter,
	}

	hash, err := auth.Hash(nonce)
	if err != nil {
		return "", err
	}

	sig, err := clientSigner.SignPersonalMessage(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("failed to sign paymaster data: %w", err)
	}
	auth.Signature = sig

	encoded, err := auth.Encode()
	if err != nil {
		return "", err
	}

	g.logger.Debug("Generated paymaster data",
		zap.String("clientSWA", auth.ClientSWA.Hex()),
		zap.String("signer", clientSigner.Address().Hex()),
		zap.Time("validAfter", auth.ValidAfter),
		zap.Time("validUntil", auth.ValidUntil),
	)

	return encoded, nil
}

// NonceToBytes32 right-aligns the 16 bytes of a UUID nonce in a bytes32
func NonceToBytes32(nonce string) ([32]byte, error) {
	var out [32]byte
	id, err := uuid.Parse(nonce)
	if err != nil {
		return out, fmt.Errorf("invalid nonce %q: %w", nonce, err)
	}
	copy(out[16:], id[:])
	return out, nil
}

func toUint48(t time.Time) (*big.Int, error) {
	ts := t.Unix()
	if ts < 0 || ts > maxUint48 {
		return nil, fmt.Errorf("timestamp %d out of uint48 range", ts)
	}
	return big.NewInt(ts), nil
}

// Hash is the digest the client signs for nonce
func (a *Authorization) Hash(nonce string) ([]byte, error) {
	nonceBytes, err := NonceToBytes32(nonce)
	if err != nil {
		return nil, err
	}
	validUntil, err := toUint48(a.ValidUntil)
	if err != nil {
		return nil, fmt.Errorf("invalid validUntil: %w", err)
	}
	validAfter, err := toUint48(a.ValidAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid validAfter: %w", err)
	}

	packed, err := hashArguments.Pack(nonceBytes, a.ClientSWA, validUntil, validAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paymaster hash input: %w", err)
	}
	return crypto.Keccak256(packed), nil
}

// Encode returns the 0x-prefixed ABI encoding of the authorization
func (a *Authorization) Encode() (string, error) {
	validUntil, err := toUint48(a.ValidUntil)
	if err != nil {
		return "", fmt.Errorf("invalid validUntil: %w", err)
	}
	validAfter, err := toUint48(a.ValidAfter)
	if err != nil {
		return "", fmt.Errorf("invalid validAfter: %w", err)
	}

	packed, err := dataArguments.Pack(a.ClientSWA, validUntil, validAfter, a.Signature)
	if err != nil {
		return "", fmt.Errorf("failed to encode paymaster data: %w", err)
	}
	return hexutil.Encode(packed), nil
}

// RecoverSigner returns the address that signed this authorization for nonce
func (a *Authorization) RecoverSigner(nonce string) (common.Address, error) {
	hash, err := a.Hash(nonce)
	if err != nil {
		return common.Address{}, err
	}
	return messageSigner.RecoverPersonalMessageSigner(hash, a.Signature)
}

// Decode parses paymaster data produced by Generate
func Decode(paymasterData string) (*Authorization, error) {
	data, err := hexutil.Decode(paymasterData)
	if err != nil {
		return nil, fmt.Errorf("invalid paymaster data hex: %w", err)
	}

	values, err := dataArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode paymaster data: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected paymaster data arity %d", len(values))
	}

	clientSWA, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for clientSWA", values[0])
	}
	validUntil, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for validUntil", values[1])
	}
	validAfter, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for validAfter", values[2])
	}
	sig, ok := values[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for signature", values[3])
	}

	return &Authorization{
		ClientSWA:  clientSWA,
		ValidUntil: time.Unix(validUntil.Int64(), 0).UTC(),
		ValidAfter: time.Unix(validAfter.Int64(), 0).UTC(),
		Signature:  sig,
	}, nil
}

// Verify decodes paymasterData and recovers the client signer for nonce
func Verify(paymasterData string, nonce string) (*Authorization, common.Address, error) {
	auth, err := Decode(paymasterData)
	if err != nil {
		return nil, common.Address{}, err
	}
	if !auth.ValidUntil.After(auth.ValidAfter) {
		return nil, common.Address{}, fmt.Errorf("validUntil %d is not after validAfter %d", auth.ValidUntil.Unix(), auth.ValidAfter.Unix())
	}
	signer, err := auth.RecoverSigner(nonce)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to recover paymaster signer: %w", err)
	}
	return auth, signer, nil
}
