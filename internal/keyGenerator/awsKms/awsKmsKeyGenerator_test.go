package awsKms

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/session-auth-go/pkg/messageSigner"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// fakeKMS is an in-memory KMS holding secp256k1 keys
type fakeKMS struct {
	keys      map[string]*cryptoEcdsa.PrivateKey
	aliases   map[string]string
	createErr error
	lastTags  []types.Tag
}

func newFakeKMS() *fakeKMS {
	return &fakeKMS{keys: map[string]*cryptoEcdsa.PrivateKey{}, aliases: map[string]string{}}
}

func (f *fakeKMS) resolve(keyId string) (*cryptoEcdsa.PrivateKey, error) {
	if target, ok := f.aliases[keyId]; ok {
		keyId = target
	}
	key, ok := f.keys[keyId]
	if !ok {
		return nil, errors.New("NotFoundException")
	}
	return key, nil
}

func (f *fakeKMS) CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	keyId := "key-" + string(rune('a'+len(f.keys)))
	f.keys[keyId] = key
	f.lastTags = params.Tags
	return &kms.CreateKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String(keyId), KeySpec: params.KeySpec}}, nil
}

func (f *fakeKMS) CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	f.aliases[aws.ToString(params.AliasName)] = aws.ToString(params.TargetKeyId)
	return &kms.CreateAliasOutput{}, nil
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	key, err := f.resolve(aws.ToString(params.KeyId))
	if err != nil {
		return nil, err
	}
	var spki subjectPublicKeyInfo
	spki.Algorithm.Algorithm = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	spki.Algorithm.Parameters = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
	pub := crypto.FromECDSAPub(&key.PublicKey)
	spki.PublicKey = asn1.BitString{Bytes: pub, BitLength: len(pub) * 8}

	der, err := asn1.Marshal(spki)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{KeyId: params.KeyId, KeySpec: types.KeySpecEccSecgP256k1, PublicKey: der}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	key, err := f.resolve(aws.ToString(params.KeyId))
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(params.Message, key)
	if err != nil {
		return nil, err
	}
	der, err := asn1.Marshal(struct{ R, S *big.Int }{new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64])})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{KeyId: params.KeyId, Signature: der}, nil
}

func TestAWSKMSKeyGenerator_GenerateClientKey(t *testing.T) {
	fake := newFakeKMS()
	generator := NewAWSKMSKeyGenerator(fake, "us-east-1", "sandbox", 0, zap.NewNop())
	ctx := context.Background()

	generated, err := generator.GenerateClientKey(ctx, "client", "session-client")
	require.NoError(t, err)

	assert.Equal(t, "key-a", generated.KeyId)
	assert.Empty(t, generated.PrivateKey)
	assert.Equal(t, crypto.PubkeyToAddress(fake.keys["key-a"].PublicKey).Hex(), generated.Address)
	assert.Equal(t, "key-a", fake.aliases["alias/session-client"])
	assert.Contains(t, fake.lastTags, types.Tag{TagKey: aws.String("Environment"), TagValue: aws.String("sandbox")})

	signer, err := generator.Signer(ctx, "alias/session-client")
	require.NoError(t, err)
	assert.Equal(t, generated.Address, signer.Address().Hex())

	sig, err := signer.SignPersonalMessage(ctx, []byte("hello"))
	require.NoError(t, err)
	recovered, err := messageSigner.RecoverPersonalMessageSigner([]byte("hello"), sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestAWSKMSKeyGenerator_Errors(t *testing.T) {
	fake := newFakeKMS()
	fake.createErr = errors.New("AccessDeniedException")
	generator := NewAWSKMSKeyGenerator(fake, "us-east-1", "sandbox", 0, zap.NewNop())

	_, err := generator.GenerateClientKey(context.Background(), "client", "")
	assert.ErrorContains(t, err, "AccessDeniedException")

	_, err = generator.GetClientKeyById(context.Background(), "missing")
	assert.ErrorContains(t, err, "NotFoundException")
}
