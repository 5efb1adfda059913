package identityProvider

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

const (
	ProviderGoogle = "google"

	googleJWKURL                = "https://www.googleapis.com/oauth2/v3/certs"
	defaultJWKSRefreshInterval  = 1 * time.Hour
	defaultGoogleAcceptableSkew = 30 * time.Second
	googleIssuer                = "https://accounts.google.com"
	googleIssuerWithoutScheme   = "accounts.google.com"
)

var googleIssuers = []string{googleIssuer, googleIssuerWithoutScheme}

type GoogleConfig struct {
	Enabled bool

	// ClientID is the OAuth web client id the ID token must be issued for
	ClientID string

	// JWKSRefreshInterval controls how often Google's signing keys are refetched
	JWKSRefreshInterval time.Duration
}

// GoogleProvider verifies Google ID tokens and forwards them as AuthData
type GoogleProvider struct {
	logger   *zap.Logger
	keySet   jwk.Set
	clientID string
	now      func() time.Time
}

var _ IIdentityProvider = (*GoogleProvider)(nil)

func NewGoogleProvider(ctx context.Context, cfg *GoogleConfig, logger *zap.Logger) (*GoogleProvider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}

	refresh := cfg.JWKSRefreshInterval
	if refresh == 0 {
		refresh = defaultJWKSRefreshInterval
	}

	logger.Sugar().Debugw("Creating Google JWK cache", "jwk_url", googleJWKURL, "refresh_interval", refresh)
	keySet, err := NewJWKCache(ctx, googleJWKURL, refresh)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google JWK cache: %w", err)
	}

	return NewGoogleProviderWithKeySet(keySet, cfg.ClientID, logger), nil
}

// NewGoogleProviderWithKeySet builds a provider around an existing key set
func NewGoogleProviderWithKeySet(keySet jwk.Set, clientID string, logger *zap.Logger) *GoogleProvider {
	return &GoogleProvider{
		logger:   logger,
		keySet:   keySet,
		clientID: clientID,
		now:      time.Now,
	}
}

func (g *GoogleProvider) Name() string {
	return ProviderGoogle
}

func (g *GoogleProvider) Available() bool {
	return true
}

// Authenticate verifies the ID token signature, expiry, issuer and audience
func (g *GoogleProvider) Authenticate(ctx context.Context, idToken string) (*session.AuthData, error) {
	if idToken == "" {
		return nil, fmt.Errorf("id token is required")
	}

	token, err := jwt.Parse(
		[]byte(idToken),
		jwt.WithKeySet(g.keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(g.clientID),
		jwt.WithAcceptableSkew(defaultGoogleAcceptableSkew),
		jwt.WithClock(jwt.ClockFunc(g.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("id token verification failed: %w", err)
	}

	issuer, ok := token.Issuer()
	if !ok {
		return nil, fmt.Errorf("issuer claim not found in token")
	}
	if !slices.Contains(googleIssuers, issuer) {
		return nil, fmt.Errorf("invalid issuer: %s", issuer)
	}

	subject, _ := token.Subject()
	g.logger.Sugar().Debugw("Verified Google ID token", "subject", subject)

	return &session.AuthData{
		IdToken:  idToken,
		Provider: ProviderGoogle,
	}, nil
}

// NewJWKCache returns a key set that is refreshed from jwkUrl in the background
func NewJWKCache(ctx context.Context, jwkUrl string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	err = cache.Register(ctx, jwkUrl, jwk.WithConstantInterval(refreshInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on startup so misconfiguration fails fast
	_, err = cache.Refresh(ctx, jwkUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwkUrl)
}
