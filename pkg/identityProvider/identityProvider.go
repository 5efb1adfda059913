package identityProvider

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"go.uber.org/zap"
)

// ErrProviderDisabled is returned by providers that are not configured for this deployment
var ErrProviderDisabled = fmt.Errorf("identity provider is disabled")

// IIdentityProvider turns an identity-provider token into the opaque AuthData carried in a payload.
// Whether a provider is available is decided once, from configuration, at startup.
type IIdentityProvider interface {
	Name() string
	Available() bool
	Authenticate(ctx context.Context, idToken string) (*session.AuthData, error)
}

// DisabledProvider stands in for a provider that is not enabled
type DisabledProvider struct {
	name string
}

var _ IIdentityProvider = (*DisabledProvider)(nil)

func NewDisabledProvider(name string) *DisabledProvider {
	return &DisabledProvider{name: name}
}

func (d *DisabledProvider) Name() string {
	return d.name
}

func (d *DisabledProvider) Available() bool {
	return false
}

func (d *DisabledProvider) Authenticate(ctx context.Context, idToken string) (*session.AuthData, error) {
	return nil, fmt.Errorf("%s: %w", d.name, ErrProviderDisabled)
}

// Config selects and configures the identity provider
type Config struct {
	Google *GoogleConfig
}

// Resolve returns the Google provider when it is enabled and a disabled provider otherwise
func Resolve(ctx context.Context, cfg *Config, logger *zap.Logger) (IIdentityProvider, error) {
	if cfg == nil || cfg.Google == nil || !cfg.Google.Enabled {
		logger.Sugar().Infow("Google sign-in is not enabled", "provider", ProviderGoogle)
		return NewDisabledProvider(ProviderGoogle), nil
	}

	provider, err := NewGoogleProvider(ctx, cfg.Google, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s identity provider: %w", ProviderGoogle, err)
	}
	return provider, nil
}
