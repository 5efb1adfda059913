package awsKmsMessageSigner

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// secp256k1 curve order, for low-S canonicalization
var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// IKMSClient is the subset of the AWS KMS API used for signing
type IKMSClient interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

type AWSKMSMessageSignerConfig struct {
	// KeyId is the KMS key id, ARN or alias ("alias/...") of an ECC_SECG_P256K1 SIGN_VERIFY key
	KeyId string

	// RequestsPerSecond throttles calls to KMS. Zero disables throttling.
	RequestsPerSecond float64
}

// AWSKMSMessageSigner keeps the client identity key inside AWS KMS and only ever sends digests to it
type AWSKMSMessageSigner struct {
	logger    *zap.Logger
	kmsClient IKMSClient
	keyId     string
	publicKey *cryptoEcdsa.PublicKey
	address   common.Address
	limiter   *rate.Limiter
}

var _ messageSigner.IMessageSigner = (*AWSKMSMessageSigner)(nil)

// NewAWSKMSMessageSigner fetches the key's public key once so the signer address is known up front
func NewAWSKMSMessageSigner(ctx context.Context, kmsClient IKMSClient, cfg *AWSKMSMessageSignerConfig, logger *zap.Logger) (*AWSKMSMessageSigner, error) {
	if cfg == nil || cfg.KeyId == "" {
		return nil, fmt.Errorf("kms key id is required")
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	signer := &AWSKMSMessageSigner{
		logger:    logger,
		kmsClient: kmsClient,
		keyId:     cfg.KeyId,
		limiter:   limiter,
	}

	pubKey, err := signer.getPublicKey(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load public key for kms key %s", cfg.KeyId)
	}
	signer.publicKey = pubKey
	signer.address = crypto.PubkeyToAddress(*pubKey)

	logger.Info("Loaded AWS KMS message signer",
		zap.String("keyId", cfg.KeyId),
		zap.String("address", signer.address.String()),
	)

	return signer, nil
}

func (a *AWSKMSMessageSigner) Address() common.Address {
	return a.address
}

func (a *AWSKMSMessageSigner) PublicKey() *cryptoEcdsa.PublicKey {
	return a.publicKey
}

func (a *AWSKMSMessageSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := a.signDigest(ctx, messageSigner.PersonalMessageHash(message))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign message with kms key %s", a.keyId)
	}
	return sig, nil
}

func (a *AWSKMSMessageSigner) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *AWSKMSMessageSigner) getPublicKey(ctx context.Context) (*cryptoEcdsa.PublicKey, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	res, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(a.keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	if res.KeySpec != "" && res.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, fmt.Errorf("unsupported key spec %s, expected %s", res.KeySpec, types.KeySpecEccSecgP256k1)
	}

	return parseECDSAPublicKey(res.PublicKey)
}

// parseECDSAPublicKey parses the DER-encoded SubjectPublicKeyInfo returned by KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	_, err := asn1.Unmarshal(derBytes, &asn1pubk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// signDigest asks KMS to sign a 32 byte digest and converts the DER signature into r || s || v
func (a *AWSKMSMessageSigner) signDigest(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(digest))
	}
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, err
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 signature: %w", err)
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	rBytes := r.FillBytes(make([]byte, 32))
	sBytes := s.FillBytes(make([]byte, 32))

	// KMS does not return the recovery id; find the one that recovers our key
	for recoveryId := 0; recoveryId < 2; recoveryId++ {
		signature := make([]byte, messageSigner.SignatureLength)
		copy(signature[0:32], rBytes)
		copy(signature[32:64], sBytes)
		signature[64] = byte(recoveryId)

		recovered, err := crypto.SigToPub(digest, signature)
		if err != nil {
			a.logger.Debug("Signature recovery failed",
				zap.Int("recoveryId", recoveryId),
				zap.Error(err),
			)
			continue
		}

		if recovered.X.Cmp(a.publicKey.X) == 0 && recovered.Y.Cmp(a.publicKey.Y) == 0 {
			return messageSigner.ToEthereumSignature(signature)
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}
