package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionKeyFromHex(t *testing.T) {
	key, err := NewSessionKeyFromHex("0x" + testSessionKeyHex)
	require.NoError(t, err)

	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", key.Address)
	assert.Equal(t, "0x"+testSessionKeyHex, key.PrivateKeyHex)
	assert.True(t, strings.HasPrefix(key.UncompressedPublicKeyHex, "0x04"))
	assert.Len(t, key.UncompressedPublicKeyHex, 2+130)

	noPrefix, err := NewSessionKeyFromHex(testSessionKeyHex)
	require.NoError(t, err)
	assert.Equal(t, key, noPrefix)
}

func TestNewSessionKeyFromHex_Invalid(t *testing.T) {
	for name, in := range map[string]string{
		"empty":     "",
		"not hex":   "zz",
		"too short": "0x1234",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewSessionKeyFromHex(in)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.Equal(t, StageSessionKey, StageOf(err))
		})
	}
}

func TestNewSessionKey(t *testing.T) {
	a, err := NewSessionKey()
	require.NoError(t, err)
	b, err := NewSessionKey()
	require.NoError(t, err)

	assert.NotEqual(t, a.Address, b.Address)

	rebuilt, err := NewSessionKeyFromHex(a.PrivateKeyHex)
	require.NoError(t, err)
	assert.Equal(t, a, rebuilt)
}

func TestSessionKey_PublicKey(t *testing.T) {
	full := newTestSessionKey(t)

	t.Run("explicit public key", func(t *testing.T) {
		pk, err := (&SessionKey{UncompressedPublicKeyHex: strings.TrimPrefix(full.UncompressedPublicKeyHex, "0x")}).PublicKey()
		require.NoError(t, err)
		assert.Equal(t, full.UncompressedPublicKeyHex, pk)
	})

	t.Run("invalid public key", func(t *testing.T) {
		_, err := (&SessionKey{UncompressedPublicKeyHex: "0x04abcd"}).PublicKey()
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.Equal(t, StageSessionPk, StageOf(err))
	})

	t.Run("invalid private key", func(t *testing.T) {
		_, err := (&SessionKey{PrivateKeyHex: "0xnothex"}).PublicKey()
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestSessionKey_DropPrivateKey(t *testing.T) {
	key := newTestSessionKey(t)
	key.DropPrivateKey()

	assert.Empty(t, key.PrivateKeyHex)
	assert.NotEmpty(t, key.UncompressedPublicKeyHex)
	assert.NotEmpty(t, key.Address)

	var nilKey *SessionKey
	assert.NotPanics(t, nilKey.DropPrivateKey)
}
