// Package verifier checks authentication payloads the way the authorization
// service does: both signatures over the session digest, the paymaster
// authorization bound to the same client key and nonce, and single use of the nonce.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/authPayload"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/paymaster"
	"github.com/Layr-Labs/session-auth-go/pkg/persistence"
	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const DefaultClockSkew = 1 * time.Minute

var (
	ErrNonceReplayed       = errors.New("session nonce has already been used")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUntrustedClient     = errors.New("client signer is not trusted")
	ErrInvalidPaymaster    = errors.New("invalid paymaster authorization")
	ErrAuthorizationWindow = errors.New("paymaster authorization is outside its validity window")
)

type VerifierConfig struct {
	// TrustedClientSigners restricts which client keys may authorize sessions. Empty allows any.
	TrustedClientSigners []common.Address

	// PaymasterAddress, when set, must match the payload's paymaster
	PaymasterAddress string

	// ClockSkew tolerated around the paymaster validity window
	ClockSkew time.Duration
}

// VerifiedSession is what a valid payload authorizes
type VerifiedSession struct {
	Nonce          string         `json:"nonce"`
	ClientSWA      common.Address `json:"clientSWA"`
	ClientSigner   common.Address `json:"clientSigner"`
	SessionAddress common.Address `json:"sessionAddress"`
	ValidUntil     time.Time      `json:"validUntil"`
	Provider       string         `json:"provider"`
}

type Verifier struct {
	logger *zap.Logger
	nonces persistence.INonceStore
	config VerifierConfig
	now    func() time.Time
}

func NewVerifier(nonces persistence.INonceStore, cfg *VerifierConfig, logger *zap.Logger) *Verifier {
	config := VerifierConfig{ClockSkew: DefaultClockSkew}
	if cfg != nil {
		config = *cfg
		if config.ClockSkew == 0 {
			config.ClockSkew = DefaultClockSkew
		}
	}

	return &Verifier{
		logger: logger,
		nonces: nonces,
		config: config,
		now:    time.Now,
	}
}

// Verify validates payload and consumes its nonce. A payload is accepted at most once.
// Consumed nonces are rejected before any signature work; MarkUsed stays the authoritative check.
func (v *Verifier) Verify(ctx context.Context, payload *session.AuthenticationPayload) (*VerifiedSession, error) {
	if payload != nil && payload.SessionData.Nonce != "" {
		used, err := v.nonces.IsUsed(ctx, payload.SessionData.Nonce)
		if err != nil {
			return nil, fmt.Errorf("failed to check nonce: %w", err)
		}
		if used {
			return nil, ErrNonceReplayed
		}
	}

	verified, validUntil, err := v.check(payload)
	if err != nil {
		return nil, err
	}

	stored, err := v.nonces.MarkUsed(ctx, verified.Nonce, validUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to record nonce: %w", err)
	}
	if !stored {
		return nil, ErrNonceReplayed
	}

	v.logger.Sugar().Infow("Accepted session payload",
		"nonce", verified.Nonce,
		"clientSWA", verified.ClientSWA.Hex(),
		"clientSigner", verified.ClientSigner.Hex(),
		"sessionAddress", verified.SessionAddress.Hex(),
	)

	return verified, nil
}

func (v *Verifier) check(payload *session.AuthenticationPayload) (*VerifiedSession, time.Time, error) {
	if payload == nil {
		return nil, time.Time{}, fmt.Errorf("payload is nil")
	}
	data := payload.SessionData

	if !common.IsHexAddress(data.ClientSWA) {
		return nil, time.Time{}, fmt.Errorf("invalid client SWA address: %q", data.ClientSWA)
	}
	clientSWA := common.HexToAddress(data.ClientSWA)

	if v.config.PaymasterAddress != "" && !strings.EqualFold(v.config.PaymasterAddress, data.Paymaster) {
		return nil, time.Time{}, fmt.Errorf("%w: unexpected paymaster %s", ErrInvalidPaymaster, data.Paymaster)
	}

	sessionAddress, err := sessionAddressFromPk(data.SessionPk)
	if err != nil {
		return nil, time.Time{}, err
	}

	digest, err := authPayload.SessionDigest(sessionAddress.Hex())
	if err != nil {
		return nil, time.Time{}, err
	}

	userSigner, err := recoverSigner(digest, payload.SessionDataUserSignature)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: user signature: %v", ErrInvalidSignature, err)
	}
	if userSigner != sessionAddress {
		return nil, time.Time{}, fmt.Errorf("%w: user signature recovers to %s, expected session address %s",
			ErrInvalidSignature, userSigner.Hex(), sessionAddress.Hex())
	}

	clientSigner, err := recoverSigner(digest, payload.SessionPkClientSignature)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: client signature: %v", ErrInvalidSignature, err)
	}
	if len(v.config.TrustedClientSigners) > 0 && !slices.Contains(v.config.TrustedClientSigners, clientSigner) {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrUntrustedClient, clientSigner.Hex())
	}

	auth, paymasterSigner, err := paymaster.Verify(data.PaymasterData, data.Nonce)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidPaymaster, err)
	}
	if auth.ClientSWA != clientSWA {
		return nil, time.Time{}, fmt.Errorf("%w: authorization is for %s, payload is for %s",
			ErrInvalidPaymaster, auth.ClientSWA.Hex(), clientSWA.Hex())
	}
	if paymasterSigner != clientSigner {
		return nil, time.Time{}, fmt.Errorf("%w: authorization signed by %s, session signed by %s",
			ErrInvalidPaymaster, paymasterSigner.Hex(), clientSigner.Hex())
	}

	now := v.now()
	if now.Add(v.config.ClockSkew).Before(auth.ValidAfter) {
		return nil, time.Time{}, fmt.Errorf("%w: not valid before %s", ErrAuthorizationWindow, auth.ValidAfter.Format(time.RFC3339))
	}
	if !now.Before(auth.ValidUntil) {
		return nil, time.Time{}, fmt.Errorf("%w: expired at %s", ErrAuthorizationWindow, auth.ValidUntil.Format(time.RFC3339))
	}

	return &VerifiedSession{
		Nonce:          data.Nonce,
		ClientSWA:      clientSWA,
		ClientSigner:   clientSigner,
		SessionAddress: sessionAddress,
		ValidUntil:     auth.ValidUntil,
		Provider:       payload.AuthData.Provider,
	}, auth.ValidUntil, nil
}

func sessionAddressFromPk(sessionPk string) (common.Address, error) {
	pub, err := hexutil.Decode(sessionPk)
	if err != nil {
		return common.Address{}, session.NewError(session.KindInvalidKey, session.StageSessionPk, fmt.Errorf("invalid session public key hex: %w", err))
	}
	pubKey, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, session.NewError(session.KindInvalidKey, session.StageSessionPk, fmt.Errorf("invalid session public key: %w", err))
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func recoverSigner(digest [32]byte, signature string) (common.Address, error) {
	sig, err := messageSigner.DecodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	return messageSigner.RecoverPersonalMessageSigner(digest[:], sig)
}
