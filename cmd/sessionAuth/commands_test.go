package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator"
	"github.com/Layr-Labs/session-auth-go/pkg/config"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner/inMemoryMessageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/Layr-Labs/session-auth-go/pkg/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConfig = `
clientSWA: "0x000000000000000000000000000000000000dEaD"
paymasterAddress: "0x5408fAa7F005c46B85d82060c532b820F534437c"
sessionValidity: 1h
clientSigner:
  type: local
  privateKey: "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
nonceStore:
  type: badger
  badgerPath: "%s"
verifier:
  trustedClientSigners:
    - "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
`

func runApp(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"session-auth"}, args...)))
	return out.Bytes()
}

func TestCLI_KeygenGenerateVerify(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	cfgYaml := bytes.ReplaceAll([]byte(testConfig), []byte("%s"), []byte(filepath.Join(dir, "nonces")))
	require.NoError(t, os.WriteFile(configPath, cfgYaml, 0600))

	var key session.SessionKey
	require.NoError(t, json.Unmarshal(runApp(t, "keygen"), &key))
	require.NotEmpty(t, key.PrivateKeyHex)

	payloadPath := filepath.Join(dir, "payload.json")
	runApp(t, "--config", configPath, "generate",
		"--session-key", key.PrivateKeyHex,
		"--id-token", "opaque-token",
		"--output", payloadPath,
	)

	raw, err := os.ReadFile(payloadPath)
	require.NoError(t, err)
	var payload session.AuthenticationPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, session.AuthData{IdToken: "opaque-token", Provider: "google"}, payload.AuthData)
	assert.Equal(t, key.UncompressedPublicKeyHex, payload.SessionData.SessionPk)

	var verified verifier.VerifiedSession
	require.NoError(t, json.Unmarshal(runApp(t, "--config", configPath, "verify", "--payload", payloadPath), &verified))
	assert.Equal(t, payload.SessionData.Nonce, verified.Nonce)
	assert.Equal(t, key.Address, verified.SessionAddress.Hex())

	// the badger nonce store persists across invocations
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err = app.Run([]string{"session-auth", "--config", configPath, "verify", "--payload", payloadPath})
	assert.ErrorIs(t, err, verifier.ErrNonceReplayed)
}

func TestNewNonceStore(t *testing.T) {
	cfg := config.NewDefaultSessionAuthConfig()
	store, err := newNonceStore(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.NonceStore.Type = "etcd"
	_, err = newNonceStore(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestCLI_KeygenClient(t *testing.T) {
	var key keyGenerator.GeneratedClientKey
	require.NoError(t, json.Unmarshal(runApp(t, "keygen", "--client", "--key-name", "test-client"), &key))

	assert.True(t, strings.HasPrefix(key.KeyId, "local-key-"))
	require.NotEmpty(t, key.PrivateKey)

	signer, err := inMemoryMessageSigner.NewInMemoryMessageSignerFromHex(key.PrivateKey, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, key.Address, signer.Address().Hex())
}

func TestNewClientSigner_Local(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewDefaultSessionAuthConfig()
	cfg.ClientSigner.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	signer, cleanup, err := newClientSigner(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address().Hex())

	_, err = signer.SignPersonalMessage(ctx, []byte("session"))
	require.NoError(t, err)

	cleanup()
	_, err = signer.SignPersonalMessage(ctx, []byte("session"))
	assert.ErrorContains(t, err, "zeroed")

	t.Run("invalid key", func(t *testing.T) {
		cfg := config.NewDefaultSessionAuthConfig()
		cfg.ClientSigner.PrivateKey = "0x1234"
		_, _, err := newClientSigner(ctx, cfg, zap.NewNop())
		assert.ErrorIs(t, err, session.ErrInvalidKey)
		assert.Equal(t, session.StageClientKey, session.StageOf(err))
	})

	t.Run("unsupported type", func(t *testing.T) {
		cfg := config.NewDefaultSessionAuthConfig()
		cfg.ClientSigner.Type = "hsm"
		_, _, err := newClientSigner(ctx, cfg, zap.NewNop())
		assert.ErrorContains(t, err, "unsupported client signer type")
	})
}

func TestWriteJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, writeJSONFile(path, map[string]string{"nonce": "n"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nonce":"n"}`, string(raw))

	assert.Error(t, writeJSONFile(path, make(chan int)))
	assert.Error(t, writeJSONFile(filepath.Join(dir, "missing", "out.json"), "x"))
}
