package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/session-auth-go/pkg/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names; they override values from the config file
const (
	EnvClientSWA            = "SESSION_CLIENT_SWA"
	EnvClientPrivateKey     = "SESSION_CLIENT_PRIVATE_KEY"
	EnvClientSignerType     = "SESSION_CLIENT_SIGNER_TYPE"
	EnvKMSKeyId             = "SESSION_KMS_KEY_ID"
	EnvAWSRegion            = "SESSION_AWS_REGION"
	EnvPaymasterAddress     = "SESSION_PAYMASTER_ADDRESS"
	EnvSessionValidity      = "SESSION_VALIDITY"
	EnvGoogleClientID       = "SESSION_GOOGLE_CLIENT_ID"
	EnvNonceStoreType       = "SESSION_NONCE_STORE"
	EnvRedisAddress         = "SESSION_REDIS_ADDRESS"
	EnvRedisPassword        = "SESSION_REDIS_PASSWORD"
	EnvBadgerPath           = "SESSION_BADGER_PATH"
	EnvTrustedClientSigners = "SESSION_TRUSTED_CLIENT_SIGNERS"
	EnvVerbose              = "SESSION_VERBOSE"
)

type SignerType string

func (s SignerType) String() string {
	return string(s)
}

const (
	SignerTypeLocal  SignerType = "local"
	SignerTypeAWSKMS SignerType = "awsKms"
)

type NonceStoreType string

func (n NonceStoreType) String() string {
	return string(n)
}

const (
	NonceStoreTypeMemory NonceStoreType = "memory"
	NonceStoreTypeRedis  NonceStoreType = "redis"
	NonceStoreTypeBadger NonceStoreType = "badger"
)

const DefaultSessionValidity = session.DefaultSessionValidity

// ClientSignerConfig selects where the long-lived client key lives
type ClientSignerConfig struct {
	Type SignerType `json:"type" yaml:"type"`

	// PrivateKey is the hex client key for the local signer
	PrivateKey string `json:"-" yaml:"privateKey"`

	// KMSKeyId is the AWS KMS key id, ARN or alias for the awsKms signer
	KMSKeyId             string  `json:"kmsKeyId" yaml:"kmsKeyId"`
	AWSRegion            string  `json:"awsRegion" yaml:"awsRegion"`
	KMSRequestsPerSecond float64 `json:"kmsRequestsPerSecond" yaml:"kmsRequestsPerSecond"`
}

// GasFeeConfig holds optional fee caps as 0x-hex or decimal wei
type GasFeeConfig struct {
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas" yaml:"maxPriorityFeePerGas"`
	MaxFeePerGas         string `json:"maxFeePerGas" yaml:"maxFeePerGas"`
}

type GoogleConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	ClientID            string        `json:"clientId" yaml:"clientId"`
	JWKSRefreshInterval time.Duration `json:"jwksRefreshInterval" yaml:"jwksRefreshInterval"`
}

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"-" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type NonceStoreConfig struct {
	Type       NonceStoreType `json:"type" yaml:"type"`
	Redis      *RedisConfig   `json:"redis,omitempty" yaml:"redis"`
	BadgerPath string         `json:"badgerPath" yaml:"badgerPath"`
}

type VerifierConfig struct {
	TrustedClientSigners []string      `json:"trustedClientSigners" yaml:"trustedClientSigners"`
	ClockSkew            time.Duration `json:"clockSkew" yaml:"clockSkew"`
}

// SessionAuthConfig is the configuration of the session-auth CLI
type SessionAuthConfig struct {
	Environment      string        `json:"environment" yaml:"environment"`
	ClientSWA        string        `json:"clientSWA" yaml:"clientSWA"`
	PaymasterAddress string        `json:"paymasterAddress" yaml:"paymasterAddress"`
	SessionValidity  time.Duration `json:"sessionValidity" yaml:"sessionValidity"`

	ClientSigner ClientSignerConfig `json:"clientSigner" yaml:"clientSigner"`
	GasFees      *GasFeeConfig      `json:"gasFees,omitempty" yaml:"gasFees"`
	Google       GoogleConfig       `json:"google" yaml:"google"`
	NonceStore   NonceStoreConfig   `json:"nonceStore" yaml:"nonceStore"`
	Verifier     VerifierConfig     `json:"verifier" yaml:"verifier"`

	Debug bool `json:"debug" yaml:"debug"`
}

func NewDefaultSessionAuthConfig() *SessionAuthConfig {
	return &SessionAuthConfig{
		SessionValidity: DefaultSessionValidity,
		ClientSigner: ClientSignerConfig{
			Type: SignerTypeLocal,
		},
		NonceStore: NonceStoreConfig{
			Type: NonceStoreTypeMemory,
		},
	}
}

// LoadSessionAuthConfig reads a YAML config file on top of the defaults
func LoadSessionAuthConfig(path string) (*SessionAuthConfig, error) {
	cfg := NewDefaultSessionAuthConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.SessionValidity == 0 {
		cfg.SessionValidity = DefaultSessionValidity
	}
	return cfg, nil
}

// ApplyEnv overrides config values with any SESSION_* variables returned by lookup
func (c *SessionAuthConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	setString := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	setString(EnvClientSWA, &c.ClientSWA)
	setString(EnvPaymasterAddress, &c.PaymasterAddress)
	setString(EnvClientPrivateKey, &c.ClientSigner.PrivateKey)
	setString(EnvKMSKeyId, &c.ClientSigner.KMSKeyId)
	setString(EnvAWSRegion, &c.ClientSigner.AWSRegion)
	setString(EnvGoogleClientID, &c.Google.ClientID)
	setString(EnvBadgerPath, &c.NonceStore.BadgerPath)

	if v, ok := lookup(EnvClientSignerType); ok && v != "" {
		c.ClientSigner.Type = SignerType(v)
	}
	if v, ok := lookup(EnvNonceStoreType); ok && v != "" {
		c.NonceStore.Type = NonceStoreType(v)
	}
	if v, ok := lookup(EnvGoogleClientID); ok && v != "" {
		c.Google.Enabled = true
	}
	if v, ok := lookup(EnvRedisAddress); ok && v != "" {
		if c.NonceStore.Redis == nil {
			c.NonceStore.Redis = &RedisConfig{}
		}
		c.NonceStore.Redis.Address = v
	}
	if v, ok := lookup(EnvRedisPassword); ok && v != "" {
		if c.NonceStore.Redis == nil {
			c.NonceStore.Redis = &RedisConfig{}
		}
		c.NonceStore.Redis.Password = v
	}
	if v, ok := lookup(EnvSessionValidity); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSessionValidity, err)
		}
		c.SessionValidity = d
	}
	if v, ok := lookup(EnvTrustedClientSigners); ok && v != "" {
		c.Verifier.TrustedClientSigners = splitList(v)
	}
	if v, ok := lookup(EnvVerbose); ok && v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvVerbose, err)
		}
		c.Debug = verbose
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateForGenerate checks everything needed to produce payloads
func (c *SessionAuthConfig) ValidateForGenerate() error {
	var allErrors field.ErrorList

	if c.ClientSWA == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("clientSWA"), "clientSWA is required"))
	} else if !common.IsHexAddress(c.ClientSWA) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("clientSWA"), c.ClientSWA, "must be a hex address"))
	}

	if c.PaymasterAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("paymasterAddress"), "paymasterAddress is required"))
	} else if !common.IsHexAddress(c.PaymasterAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("paymasterAddress"), c.PaymasterAddress, "must be a hex address"))
	}

	if c.SessionValidity <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("sessionValidity"), c.SessionValidity.String(), "must be positive"))
	}

	allErrors = append(allErrors, c.ClientSigner.validate(field.NewPath("clientSigner"))...)

	if c.GasFees != nil {
		if _, err := c.GasFees.ToGasFees(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("gasFees"), c.GasFees, err.Error()))
		}
	}

	if c.Google.Enabled && c.Google.ClientID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("google", "clientId"), "clientId is required when google sign-in is enabled"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ValidateForVerify checks everything needed to verify payloads
func (c *SessionAuthConfig) ValidateForVerify() error {
	var allErrors field.ErrorList

	if c.PaymasterAddress != "" && !common.IsHexAddress(c.PaymasterAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("paymasterAddress"), c.PaymasterAddress, "must be a hex address"))
	}

	allErrors = append(allErrors, c.NonceStore.validate(field.NewPath("nonceStore"))...)

	for i, signer := range c.Verifier.TrustedClientSigners {
		if !common.IsHexAddress(signer) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("verifier", "trustedClientSigners").Index(i), signer, "must be a hex address"))
		}
	}
	if c.Verifier.ClockSkew < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("verifier", "clockSkew"), c.Verifier.ClockSkew.String(), "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (csc *ClientSignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch csc.Type {
	case SignerTypeLocal:
		if csc.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required for the local signer"))
		} else if len(strings.TrimPrefix(csc.PrivateKey, "0x")) != 64 {
			// never echo the key back
			allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>", "must be 32 bytes (64 hex chars)"))
		}
	case SignerTypeAWSKMS:
		if csc.KMSKeyId == "" {
			allErrors = append(allErrors, field.Required(path.Child("kmsKeyId"), "kmsKeyId is required for the awsKms signer"))
		}
		if csc.KMSRequestsPerSecond < 0 {
			allErrors = append(allErrors, field.Invalid(path.Child("kmsRequestsPerSecond"), csc.KMSRequestsPerSecond, "must not be negative"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), csc.Type, []string{SignerTypeLocal.String(), SignerTypeAWSKMS.String()}))
	}
	return allErrors
}

func (nsc *NonceStoreConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch nsc.Type {
	case NonceStoreTypeMemory:
	case NonceStoreTypeRedis:
		if nsc.Redis == nil || nsc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "redis address is required for the redis nonce store"))
		} else if nsc.Redis.DB < 0 || nsc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), nsc.Redis.DB, "must be between 0-15"))
		}
	case NonceStoreTypeBadger:
		if nsc.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerPath"), "badgerPath is required for the badger nonce store"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), nsc.Type,
			[]string{NonceStoreTypeMemory.String(), NonceStoreTypeRedis.String(), NonceStoreTypeBadger.String()}))
	}
	return allErrors
}

// ToGasFees parses the configured fee caps. Empty values stay unset.
func (g *GasFeeConfig) ToGasFees() (*session.GasFees, error) {
	if g == nil {
		return nil, nil
	}
	priority, err := parseQuantity(g.MaxPriorityFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("invalid maxPriorityFeePerGas: %w", err)
	}
	maxFee, err := parseQuantity(g.MaxFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("invalid maxFeePerGas: %w", err)
	}
	if priority != nil && maxFee != nil && (*big.Int)(priority).Cmp((*big.Int)(maxFee)) > 0 {
		return nil, fmt.Errorf("maxPriorityFeePerGas exceeds maxFeePerGas")
	}
	return &session.GasFees{
		MaxPriorityFeePerGas: priority,
		MaxFeePerGas:         maxFee,
	}, nil
}

func parseQuantity(v string) (*hexutil.Big, error) {
	if v == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(v, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%q is not a non-negative integer", v)
	}
	return (*hexutil.Big)(n), nil
}

// TrustedClientSignerAddresses returns the verifier allow-list as addresses
func (c *SessionAuthConfig) TrustedClientSignerAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(c.Verifier.TrustedClientSigners))
	for _, s := range c.Verifier.TrustedClientSigners {
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs
}
