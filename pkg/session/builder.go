package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionValidity bounds the paymaster authorization of a session
const DefaultSessionValidity = 6 * time.Hour

// IPaymasterAuthorizer issues the delegated (paymaster) authorization for a session nonce.
// Implementations may call out to the network and may fail.
type IPaymasterAuthorizer interface {
	Generate(ctx context.Context, clientSWA string, clientSigner messageSigner.IMessageSigner, nonce string, validUntil time.Time) (string, error)
}

type BuilderConfig struct {
	// SessionValidity is added to the current time to produce the paymaster expiry
	SessionValidity time.Duration

	// GasFees are attached to session data when set
	GasFees *GasFees
}

type Builder struct {
	logger     *zap.Logger
	authorizer IPaymasterAuthorizer
	validity   time.Duration
	gasFees    *GasFees
	now        func() time.Time
	newNonce   func() (string, error)
}

func NewBuilder(authorizer IPaymasterAuthorizer, cfg *BuilderConfig, logger *zap.Logger) *Builder {
	validity := DefaultSessionValidity
	var gasFees *GasFees
	if cfg != nil {
		if cfg.SessionValidity > 0 {
			validity = cfg.SessionValidity
		}
		gasFees = cfg.GasFees
	}

	return &Builder{
		logger:     logger,
		authorizer: authorizer,
		validity:   validity,
		gasFees:    gasFees,
		now:        time.Now,
		newNonce:   NewNonce,
	}
}

// NewNonce returns a random (v4) UUID in canonical form
func NewNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SessionValidity is the validity window applied to paymaster authorizations
func (b *Builder) SessionValidity() time.Duration {
	return b.validity
}

// Build assembles session data for sessionKey. The paymaster authorization is
// requested from the authorizer for a fresh nonce and expires at now + validity.
func (b *Builder) Build(
	ctx context.Context,
	clientCtx *ClientContext,
	sessionKey *SessionKey,
	clientSWA string,
	clientSigner messageSigner.IMessageSigner,
) (*SessionData, error) {
	if clientCtx == nil {
		return nil, NewError(KindInvalidKey, StageClientContext, fmt.Errorf("client context is nil"))
	}
	if clientSigner == nil {
		return nil, NewError(KindInvalidKey, StageClientKey, fmt.Errorf("client signer is nil"))
	}

	sessionPk, err := sessionKey.PublicKey()
	if err != nil {
		return nil, err
	}

	nonce, err := b.newNonce()
	if err != nil {
		return nil, NewError(KindAuthorizationData, StageNonce, fmt.Errorf("failed to generate nonce: %w", err))
	}

	validUntil := b.now().UTC().Add(b.validity)
	paymasterData, err := b.authorizer.Generate(ctx, clientSWA, clientSigner, nonce, validUntil)
	if err != nil {
		b.logger.Sugar().Warnw("Paymaster authorization failed",
			"clientSWA", clientSWA,
			"nonce", nonce,
			"error", err,
		)
		return nil, NewError(KindAuthorizationData, StagePaymasterData, err)
	}

	data := &SessionData{
		Nonce:         nonce,
		ClientSWA:     clientSWA,
		SessionPk:     sessionPk,
		Paymaster:     clientCtx.PaymasterAddress,
		PaymasterData: paymasterData,
	}
	if b.gasFees != nil {
		data.MaxPriorityFeePerGas = b.gasFees.MaxPriorityFeePerGas
		data.MaxFeePerGas = b.gasFees.MaxFeePerGas
	}

	b.logger.Debug("Built session data",
		zap.String("nonce", nonce),
		zap.String("clientSWA", clientSWA),
		zap.String("sessionPk", sessionPk),
		zap.String("paymaster", data.Paymaster),
		zap.Time("validUntil", validUntil),
	)

	return data, nil
}
