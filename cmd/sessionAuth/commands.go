package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	internalAws "github.com/Layr-Labs/session-auth-go/internal/aws"
	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator"
	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/session-auth-go/pkg/authPayload"
	"github.com/Layr-Labs/session-auth-go/pkg/config"
	"github.com/Layr-Labs/session-auth-go/pkg/identityProvider"
	"github.com/Layr-Labs/session-auth-go/pkg/logger"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/paymaster"
	"github.com/Layr-Labs/session-auth-go/pkg/persistence"
	"github.com/Layr-Labs/session-auth-go/pkg/persistence/badger"
	"github.com/Layr-Labs/session-auth-go/pkg/persistence/memory"
	"github.com/Layr-Labs/session-auth-go/pkg/persistence/redis"
	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/Layr-Labs/session-auth-go/pkg/verifier"
)

// loadConfig reads the config file, applies SESSION_* overrides and builds the logger
func loadConfig(c *cli.Context) (*config.SessionAuthConfig, *zap.Logger, error) {
	cfg, err := config.LoadSessionAuthConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}
	if c.Bool("verbose") {
		cfg.Debug = true
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, l, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keygenCommand(c *cli.Context) error {
	if c.Bool("client") {
		return clientKeygen(c)
	}

	key, err := session.NewSessionKey()
	if err != nil {
		return fmt.Errorf("failed to generate session key: %w", err)
	}
	return writeJSON(c.App.Writer, key)
}

func newKeyGenerator(ctx context.Context, cfg *config.SessionAuthConfig, l *zap.Logger) (keyGenerator.IKeyGenerator, error) {
	switch cfg.ClientSigner.Type {
	case config.SignerTypeLocal:
		return localKeyGenerator.NewLocalKeyGenerator(l), nil
	case config.SignerTypeAWSKMS:
		awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.ClientSigner.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return awsKms.NewAWSKMSKeyGeneratorFromConfig(awsCfg, cfg.Environment, cfg.ClientSigner.KMSRequestsPerSecond, l), nil
	default:
		return nil, fmt.Errorf("unsupported client signer type %q", cfg.ClientSigner.Type)
	}
}

func clientKeygen(c *cli.Context) error {
	cfg, l, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	generator, err := newKeyGenerator(c.Context, cfg, l)
	if err != nil {
		return err
	}
	key, err := generator.GenerateClientKey(c.Context, c.String("key-name"), c.String("alias"))
	if err != nil {
		return fmt.Errorf("failed to provision client key: %w", err)
	}
	return writeJSON(c.App.Writer, key)
}

// configuredClientKeyId names the client key loaded from configuration
const configuredClientKeyId = "configured-client-key"

type zeroer interface {
	Zero()
}

// newClientSigner returns the signer for the configured client key. The
// returned cleanup wipes in-memory key material.
func newClientSigner(ctx context.Context, cfg *config.SessionAuthConfig, l *zap.Logger) (messageSigner.IMessageSigner, func(), error) {
	generator, err := newKeyGenerator(ctx, cfg, l)
	if err != nil {
		return nil, nil, err
	}

	keyId := cfg.ClientSigner.KMSKeyId
	if local, ok := generator.(*localKeyGenerator.LocalKeyGenerator); ok {
		keyId = configuredClientKeyId
		if err := local.LoadPrivateKeyFromHex(keyId, cfg.ClientSigner.PrivateKey, keyId, ""); err != nil {
			return nil, nil, session.NewError(session.KindInvalidKey, session.StageClientKey, err)
		}
	}

	signer, err := generator.Signer(ctx, keyId)
	if err != nil {
		if z, ok := generator.(zeroer); ok {
			z.Zero()
		}
		return nil, nil, err
	}

	cleanup := func() {
		if z, ok := signer.(zeroer); ok {
			z.Zero()
		}
		if z, ok := generator.(zeroer); ok {
			z.Zero()
		}
	}
	return signer, cleanup, nil
}

func resolveAuthData(ctx context.Context, cfg *config.SessionAuthConfig, idToken string, providerName string, l *zap.Logger) (session.AuthData, error) {
	provider, err := identityProvider.Resolve(ctx, &identityProvider.Config{
		Google: &identityProvider.GoogleConfig{
			Enabled:             cfg.Google.Enabled,
			ClientID:            cfg.Google.ClientID,
			JWKSRefreshInterval: cfg.Google.JWKSRefreshInterval,
		},
	}, l)
	if err != nil {
		return session.AuthData{}, err
	}

	if provider.Available() && provider.Name() == providerName {
		authData, err := provider.Authenticate(ctx, idToken)
		if err != nil {
			return session.AuthData{}, err
		}
		return *authData, nil
	}
	// passed through unverified, the authorization service checks it
	return session.AuthData{IdToken: idToken, Provider: providerName}, nil
}

func generateCommand(c *cli.Context) error {
	ctx := c.Context
	cfg, l, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.ValidateForGenerate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gasFees, err := cfg.GasFees.ToGasFees()
	if err != nil {
		return err
	}

	sessionKey, err := session.NewSessionKeyFromHex(c.String("session-key"))
	if err != nil {
		return err
	}
	defer sessionKey.DropPrivateKey()

	clientSigner, cleanup, err := newClientSigner(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	authData, err := resolveAuthData(ctx, cfg, c.String("id-token"), c.String("provider"), l)
	if err != nil {
		return err
	}

	builder := session.NewBuilder(paymaster.NewGenerator(l), &session.BuilderConfig{
		SessionValidity: cfg.SessionValidity,
		GasFees:         gasFees,
	}, l)
	generator := authPayload.NewGenerator(builder, l)

	payload, err := generator.GenerateWithSigner(ctx,
		&session.ClientContext{
			Environment:      cfg.Environment,
			PaymasterAddress: cfg.PaymasterAddress,
		},
		authData,
		sessionKey,
		cfg.ClientSWA,
		clientSigner,
	)
	if err != nil {
		return fmt.Errorf("failed to generate payload: %w", err)
	}

	if out := c.String("output"); out != "" {
		return writeJSONFile(out, payload)
	}
	return writeJSON(c.App.Writer, payload)
}

// writeJSONFile writes v to path with owner-only permissions
func writeJSONFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func newNonceStore(cfg *config.SessionAuthConfig, l *zap.Logger) (persistence.INonceStore, error) {
	switch cfg.NonceStore.Type {
	case config.NonceStoreTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.NonceStoreTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.NonceStore.Redis.Address,
			Password:  cfg.NonceStore.Redis.Password,
			DB:        cfg.NonceStore.Redis.DB,
			KeyPrefix: cfg.NonceStore.Redis.KeyPrefix,
		}, l)
	case config.NonceStoreTypeBadger:
		return badger.NewBadgerPersistence(cfg.NonceStore.BadgerPath, l)
	default:
		return nil, fmt.Errorf("unsupported nonce store type %q", cfg.NonceStore.Type)
	}
}

func readPayload(c *cli.Context) (*session.AuthenticationPayload, error) {
	var r io.Reader = os.Stdin
	if path := c.String("payload"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open payload: %w", err)
		}
		defer f.Close()
		r = f
	}

	var payload session.AuthenticationPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return &payload, nil
}

func verifyCommand(c *cli.Context) error {
	cfg, l, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.ValidateForVerify(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	payload, err := readPayload(c)
	if err != nil {
		return err
	}

	store, err := newNonceStore(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open nonce store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close nonce store", "error", err)
		}
	}()
	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("nonce store is unhealthy: %w", err)
	}

	v := verifier.NewVerifier(store, &verifier.VerifierConfig{
		TrustedClientSigners: cfg.TrustedClientSignerAddresses(),
		PaymasterAddress:     cfg.PaymasterAddress,
		ClockSkew:            cfg.Verifier.ClockSkew,
	}, l)

	verified, err := v.Verify(c.Context, payload)
	if err != nil {
		return fmt.Errorf("payload rejected: %w", err)
	}
	return writeJSON(c.App.Writer, verified)
}

type whoamiOutput struct {
	Identity      *internalAws.CallerIdentity `json:"identity"`
	KMSKeyId      string                      `json:"kmsKeyId,omitempty"`
	SignerAddress string                      `json:"signerAddress,omitempty"`
}

func whoamiCommand(c *cli.Context) error {
	ctx := c.Context
	cfg, l, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.ClientSigner.AWSRegion)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	identity, err := internalAws.GetCallerIdentity(ctx, awsCfg)
	if err != nil {
		return fmt.Errorf("failed to get caller identity: %w", err)
	}

	out := &whoamiOutput{Identity: identity}
	if cfg.ClientSigner.Type == config.SignerTypeAWSKMS && cfg.ClientSigner.KMSKeyId != "" {
		generator, err := newKeyGenerator(ctx, cfg, l)
		if err != nil {
			return err
		}
		key, err := generator.GetClientKeyById(ctx, cfg.ClientSigner.KMSKeyId)
		if err != nil {
			return err
		}
		out.KMSKeyId = key.KeyId
		out.SignerAddress = key.Address
	}
	return writeJSON(c.App.Writer, out)
}
