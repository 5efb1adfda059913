package session

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner/inMemoryMessageSigner"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testClientKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSessionKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testClientSWA     = "0x000000000000000000000000000000000000dEaD"
	testPaymaster     = "0x5408fAa7F005c46B85d82060c532b820F534437c"
)

type recordingAuthorizer struct {
	data  string
	err   error
	calls []authorizerCall
}

type authorizerCall struct {
	clientSWA  string
	nonce      string
	validUntil time.Time
}

func (r *recordingAuthorizer) Generate(ctx context.Context, clientSWA string, clientSigner messageSigner.IMessageSigner, nonce string, validUntil time.Time) (string, error) {
	r.calls = append(r.calls, authorizerCall{clientSWA: clientSWA, nonce: nonce, validUntil: validUntil})
	if r.err != nil {
		return "", r.err
	}
	return r.data, nil
}

func newTestSigner(t *testing.T) messageSigner.IMessageSigner {
	t.Helper()
	signer, err := inMemoryMessageSigner.NewInMemoryMessageSignerFromHex(testClientKeyHex, zap.NewNop())
	require.NoError(t, err)
	return signer
}

func newTestSessionKey(t *testing.T) *SessionKey {
	t.Helper()
	key, err := NewSessionKeyFromHex(testSessionKeyHex)
	require.NoError(t, err)
	return key
}

func TestBuilder_Build(t *testing.T) {
	authorizer := &recordingAuthorizer{data: "0xabcdef"}
	builder := NewBuilder(authorizer, nil, zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	builder.now = func() time.Time { return fixed }

	sessionKey := newTestSessionKey(t)
	data, err := builder.Build(context.Background(),
		&ClientContext{PaymasterAddress: testPaymaster},
		sessionKey,
		testClientSWA,
		newTestSigner(t),
	)
	require.NoError(t, err)

	parsed, err := uuid.Parse(data.Nonce)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.Equal(t, parsed.String(), data.Nonce)

	assert.Equal(t, testClientSWA, data.ClientSWA)
	assert.Equal(t, sessionKey.UncompressedPublicKeyHex, data.SessionPk)
	assert.Equal(t, testPaymaster, data.Paymaster)
	assert.Equal(t, "0xabcdef", data.PaymasterData)
	assert.Nil(t, data.MaxFeePerGas)
	assert.Nil(t, data.MaxPriorityFeePerGas)

	require.Len(t, authorizer.calls, 1)
	assert.Equal(t, data.Nonce, authorizer.calls[0].nonce)
	assert.Equal(t, testClientSWA, authorizer.calls[0].clientSWA)
	assert.Equal(t, fixed.Add(6*time.Hour), authorizer.calls[0].validUntil)
}

func TestBuilder_Build_UniqueNonces(t *testing.T) {
	builder := NewBuilder(&recordingAuthorizer{data: "0x"}, nil, zap.NewNop())
	sessionKey := newTestSessionKey(t)
	signer := newTestSigner(t)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		data, err := builder.Build(context.Background(), &ClientContext{PaymasterAddress: testPaymaster}, sessionKey, testClientSWA, signer)
		require.NoError(t, err)
		_, dup := seen[data.Nonce]
		require.False(t, dup, "duplicate nonce %s", data.Nonce)
		seen[data.Nonce] = struct{}{}
	}
}

func TestBuilder_Build_CustomValidityAndGasFees(t *testing.T) {
	authorizer := &recordingAuthorizer{data: "0x01"}
	gasFees := &GasFees{
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1_000_000_000)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(30_000_000_000)),
	}
	builder := NewBuilder(authorizer, &BuilderConfig{SessionValidity: 30 * time.Minute, GasFees: gasFees}, zap.NewNop())
	fixed := time.Unix(1_700_000_000, 0)
	builder.now = func() time.Time { return fixed }

	assert.Equal(t, 30*time.Minute, builder.SessionValidity())

	data, err := builder.Build(context.Background(), &ClientContext{PaymasterAddress: testPaymaster}, newTestSessionKey(t), testClientSWA, newTestSigner(t))
	require.NoError(t, err)
	assert.Equal(t, "0x3b9aca00", data.MaxPriorityFeePerGas.String())
	assert.Equal(t, "0x6fc23ac00", data.MaxFeePerGas.String())
	assert.Equal(t, fixed.UTC().Add(30*time.Minute), authorizer.calls[0].validUntil)
}

func TestBuilder_Build_AuthorizerFailure(t *testing.T) {
	cause := errors.New("paymaster service unavailable")
	builder := NewBuilder(&recordingAuthorizer{err: cause}, nil, zap.NewNop())

	data, err := builder.Build(context.Background(), &ClientContext{PaymasterAddress: testPaymaster}, newTestSessionKey(t), testClientSWA, newTestSigner(t))
	require.Error(t, err)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrAuthorizationData)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StagePaymasterData, StageOf(err))
}

func TestBuilder_Build_NonceFailure(t *testing.T) {
	authorizer := &recordingAuthorizer{data: "0x"}
	builder := NewBuilder(authorizer, nil, zap.NewNop())
	builder.newNonce = func() (string, error) { return "", errors.New("entropy exhausted") }

	_, err := builder.Build(context.Background(), &ClientContext{}, newTestSessionKey(t), testClientSWA, newTestSigner(t))
	assert.ErrorIs(t, err, ErrAuthorizationData)
	assert.Equal(t, StageNonce, StageOf(err))
	assert.Empty(t, authorizer.calls)
}

func TestBuilder_Build_InvalidInputs(t *testing.T) {
	authorizer := &recordingAuthorizer{data: "0x"}
	builder := NewBuilder(authorizer, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("missing session keys", func(t *testing.T) {
		_, err := builder.Build(ctx, &ClientContext{}, &SessionKey{Address: testClientSWA}, testClientSWA, newTestSigner(t))
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.Equal(t, StageSessionPk, StageOf(err))
	})

	t.Run("nil session key", func(t *testing.T) {
		_, err := builder.Build(ctx, &ClientContext{}, nil, testClientSWA, newTestSigner(t))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("nil client signer", func(t *testing.T) {
		_, err := builder.Build(ctx, &ClientContext{}, newTestSessionKey(t), testClientSWA, nil)
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.Equal(t, StageClientKey, StageOf(err))
	})

	t.Run("nil client context", func(t *testing.T) {
		_, err := builder.Build(ctx, nil, newTestSessionKey(t), testClientSWA, newTestSigner(t))
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.NotErrorIs(t, err, ErrAuthorizationData)
		assert.Equal(t, StageClientContext, StageOf(err))
	})

	assert.Empty(t, authorizer.calls)
}

func TestBuilder_Build_DerivesPublicKeyFromPrivateKey(t *testing.T) {
	builder := NewBuilder(&recordingAuthorizer{data: "0x"}, nil, zap.NewNop())
	full := newTestSessionKey(t)

	data, err := builder.Build(context.Background(), &ClientContext{}, &SessionKey{PrivateKeyHex: testSessionKeyHex}, testClientSWA, newTestSigner(t))
	require.NoError(t, err)
	assert.Equal(t, full.UncompressedPublicKeyHex, data.SessionPk)
}
