package awsKms

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/session-auth-go/internal/keyGenerator"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner/awsKmsMessageSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// IKMSAdminClient is the subset of the AWS KMS API used to provision client keys
type IKMSAdminClient interface {
	awsKmsMessageSigner.IKMSClient
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
}

type AWSKMSKeyGenerator struct {
	logger            *zap.Logger
	kmsClient         IKMSAdminClient
	awsRegion         string
	environment       string
	requestsPerSecond float64
}

var _ keyGenerator.IKeyGenerator = (*AWSKMSKeyGenerator)(nil)

func NewAWSKMSKeyGeneratorFromConfig(awsCfg aws.Config, environment string, requestsPerSecond float64, logger *zap.Logger) *AWSKMSKeyGenerator {
	return NewAWSKMSKeyGenerator(kms.NewFromConfig(awsCfg), awsCfg.Region, environment, requestsPerSecond, logger)
}

func NewAWSKMSKeyGenerator(kmsClient IKMSAdminClient, awsRegion string, environment string, requestsPerSecond float64, logger *zap.Logger) *AWSKMSKeyGenerator {
	return &AWSKMSKeyGenerator{
		logger:            logger,
		kmsClient:         kmsClient,
		awsRegion:         awsRegion,
		environment:       environment,
		requestsPerSecond: requestsPerSecond,
	}
}

func (a *AWSKMSKeyGenerator) GenerateClientKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedClientKey, error) {
	keyRes, err := a.createClientSigningKey(ctx, keyName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create client key %s in region %s", keyName, a.awsRegion)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if aliasName != "" {
		if err := a.createKeyAlias(ctx, keyId, aliasName); err != nil {
			return nil, errors.Wrapf(err, "failed to create alias %s for key %s in region %s", aliasName, keyId, a.awsRegion)
		}
	}

	return a.GetClientKeyById(ctx, keyId)
}

func (a *AWSKMSKeyGenerator) GetClientKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedClientKey, error) {
	signer, err := a.signer(ctx, keyId)
	if err != nil {
		return nil, err
	}
	return keyGenerator.NewGeneratedClientKey(keyId, signer.PublicKey())
}

func (a *AWSKMSKeyGenerator) Signer(ctx context.Context, keyId string) (messageSigner.IMessageSigner, error) {
	return a.signer(ctx, keyId)
}

func (a *AWSKMSKeyGenerator) signer(ctx context.Context, keyId string) (*awsKmsMessageSigner.AWSKMSMessageSigner, error) {
	signer, err := awsKmsMessageSigner.NewAWSKMSMessageSigner(ctx, a.kmsClient, &awsKmsMessageSigner.AWSKMSMessageSignerConfig{
		KeyId:             keyId,
		RequestsPerSecond: a.requestsPerSecond,
	}, a.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load key %s in region %s", keyId, a.awsRegion)
	}
	return signer, nil
}

// createClientSigningKey creates a secp256k1 SIGN_VERIFY key for personal-sign signatures
func (a *AWSKMSKeyGenerator) createClientSigningKey(ctx context.Context, keyName string) (*kms.CreateKeyOutput, error) {
	input := &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("Session authentication client key - %s", keyName)),
		Tags: []types.Tag{
			{TagKey: aws.String("Name"), TagValue: aws.String(keyName)},
			{TagKey: aws.String("Environment"), TagValue: aws.String(a.environment)},
			{TagKey: aws.String("Purpose"), TagValue: aws.String("session-client-key")},
			{TagKey: aws.String("Curve"), TagValue: aws.String("secp256k1")},
		},
	}

	result, err := a.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	if result.KeyMetadata == nil || result.KeyMetadata.KeyId == nil {
		return nil, fmt.Errorf("KMS returned no key metadata")
	}
	return result, nil
}

func (a *AWSKMSKeyGenerator) createKeyAlias(ctx context.Context, keyId, aliasName string) error {
	_, err := a.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
		TargetKeyId: aws.String(keyId),
	})
	if err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}

	a.logger.Sugar().Infow("Created KMS key alias", "alias", "alias/"+aliasName, "keyId", keyId)
	return nil
}
