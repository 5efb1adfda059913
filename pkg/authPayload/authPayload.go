package authPayload

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner/inMemoryMessageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Generator struct {
	logger  *zap.Logger
	builder *session.Builder
}

func NewGenerator(builder *session.Builder, logger *zap.Logger) *Generator {
	return &Generator{
		logger:  logger,
		builder: builder,
	}
}

// Generate produces a signed authentication payload using a raw client private key.
// The in-memory copies of both private keys are wiped before returning.
func (g *Generator) Generate(
	ctx context.Context,
	clientCtx *session.ClientContext,
	authData session.AuthData,
	sessionKey *session.SessionKey,
	clientSWA string,
	clientPrivateKeyHex string,
) (*session.AuthenticationPayload, error) {
	clientSigner, err := inMemoryMessageSigner.NewInMemoryMessageSignerFromHex(clientPrivateKeyHex, g.logger)
	if err != nil {
		return nil, session.NewError(session.KindInvalidKey, session.StageClientKey, err)
	}
	defer clientSigner.Zero()

	return g.GenerateWithSigner(ctx, clientCtx, authData, sessionKey, clientSWA, clientSigner)
}

// GenerateWithSigner produces a signed authentication payload with the client key behind clientSigner.
// Either the full payload is returned or an error; never a partial payload.
func (g *Generator) GenerateWithSigner(
	ctx context.Context,
	clientCtx *session.ClientContext,
	authData session.AuthData,
	sessionKey *session.SessionKey,
	clientSWA string,
	clientSigner messageSigner.IMessageSigner,
) (*session.AuthenticationPayload, error) {
	if sessionKey == nil {
		return nil, session.NewError(session.KindInvalidKey, session.StageSessionKey, fmt.Errorf("session key is nil"))
	}
	if clientSigner == nil {
		return nil, session.NewError(session.KindInvalidKey, session.StageClientKey, fmt.Errorf("client signer is nil"))
	}

	digest, err := SessionDigest(sessionKey.Address)
	if err != nil {
		return nil, err
	}

	userSigner, err := inMemoryMessageSigner.NewInMemoryMessageSignerFromHex(sessionKey.PrivateKeyHex, g.logger)
	if err != nil {
		return nil, session.NewError(session.KindInvalidKey, session.StageSessionKey, err)
	}
	defer userSigner.Zero()

	sessionData, err := g.builder.Build(ctx, clientCtx, sessionKey, clientSWA, clientSigner)
	if err != nil {
		return nil, err
	}

	clientSig, userSig, err := SignDigest(ctx, digest, clientSigner, userSigner)
	if err != nil {
		return nil, err
	}

	g.logger.Sugar().Infow("Generated authentication payload",
		"nonce", sessionData.Nonce,
		"clientSWA", clientSWA,
		"clientSigner", clientSigner.Address().Hex(),
		"sessionAddress", sessionKey.Address,
		"provider", authData.Provider,
	)

	return &session.AuthenticationPayload{
		AuthData:                 authData,
		SessionData:              *sessionData,
		SessionPkClientSignature: clientSig,
		SessionDataUserSignature: userSig,
	}, nil
}

// SignDigest personal-signs the same digest with the client and the session (user) key.
// The two signatures are independent and are computed concurrently; if either fails
// the other is discarded.
func SignDigest(
	ctx context.Context,
	digest [32]byte,
	clientSigner messageSigner.IMessageSigner,
	userSigner messageSigner.IMessageSigner,
) (string, string, error) {
	var clientRaw, userRaw []byte

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		sig, err := signDigestWith(egCtx, clientSigner, digest)
		if err != nil {
			return session.NewError(session.KindSigning, session.StageClientSignature, err)
		}
		clientRaw = sig
		return nil
	})
	eg.Go(func() error {
		sig, err := signDigestWith(egCtx, userSigner, digest)
		if err != nil {
			return session.NewError(session.KindSigning, session.StageUserSignature, err)
		}
		userRaw = sig
		return nil
	})
	if err := eg.Wait(); err != nil {
		return "", "", err
	}

	return messageSigner.EncodeSignature(clientRaw), messageSigner.EncodeSignature(userRaw), nil
}

func signDigestWith(ctx context.Context, signer messageSigner.IMessageSigner, digest [32]byte) ([]byte, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer is nil")
	}
	sig, err := signer.SignPersonalMessage(ctx, digest[:])
	if err != nil {
		return nil, err
	}
	if len(sig) != messageSigner.SignatureLength {
		return nil, fmt.Errorf("signer returned %d byte signature, expected %d", len(sig), messageSigner.SignatureLength)
	}
	return sig, nil
}
