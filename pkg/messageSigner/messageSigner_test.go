package messageSigner

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testDigestHex    = "0xaafae41182fdefb0af836c3b506e127c7f229f33360c66de1139f4b0316f09d8"
	testSignatureHex = "0x23fed3f4767336a5b35c3b2e137feb21f001296295830bf73f6288b3d63a855d0bab2a9bd7b166cd1aa17c9e3bd43f0cee1961ffb7bbcb776ff89bbce93985b51c"
)

func TestPersonalMessageHash(t *testing.T) {
	message := []byte("hello")
	expected := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n5hello"))
	assert.Equal(t, expected, PersonalMessageHash(message))
}

func TestRecoverPersonalMessageSigner(t *testing.T) {
	digest := hexutil.MustDecode(testDigestHex)
	sig, err := DecodeSignature(testSignatureHex)
	require.NoError(t, err)

	signer, err := RecoverPersonalMessageSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"), signer)

	// raw 0/1 recovery ids are accepted too
	raw := append([]byte{}, sig...)
	raw[64] -= 27
	signer, err = RecoverPersonalMessageSigner(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"), signer)

	_, err = RecoverPersonalMessageSigner(digest, sig[:64])
	assert.Error(t, err)
}

func TestEncodeDecodeSignature(t *testing.T) {
	sig, err := DecodeSignature(testSignatureHex[2:])
	require.NoError(t, err)
	assert.Len(t, sig, SignatureLength)
	assert.Equal(t, testSignatureHex, EncodeSignature(sig))

	_, err = DecodeSignature("0x1234")
	assert.ErrorContains(t, err, "invalid signature length")

	_, err = DecodeSignature("0xzz")
	assert.ErrorContains(t, err, "invalid signature hex")
}

func TestToEthereumSignature(t *testing.T) {
	raw := make([]byte, SignatureLength)
	raw[64] = 1

	sig, err := ToEthereumSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(28), sig[64])
	assert.Equal(t, byte(1), raw[64], "input must not be modified")

	again, err := ToEthereumSignature(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(28), again[64])

	_, err = ToEthereumSignature(raw[:10])
	assert.Error(t, err)
}

func TestTrimHexPrefix(t *testing.T) {
	tests := map[string]string{
		"0xabc": "abc",
		"0Xabc": "abc",
		"abc":   "abc",
		"0x":    "",
		"0":     "0",
		"":      "",
		"x0abc": "x0abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, TrimHexPrefix(in), in)
	}

	sig, err := DecodeSignature("0X" + testSignatureHex[2:])
	require.NoError(t, err)
	assert.Len(t, sig, SignatureLength)
}
