package awsKms

import (
	"context"
	gethEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	oidEcPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type fakeKMS struct {
	keys           map[string]*gethEcdsa.PrivateKey
	forceHighS     bool
	getPublicCalls int
}

func newFakeKMS() *fakeKMS {
	return &fakeKMS{keys: map[string]*gethEcdsa.PrivateKey{}}
}

func (f *fakeKMS) CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("key-%d", len(f.keys)+1)
	f.keys[id] = key
	return &kms.CreateKeyOutput{KeyMetadata: &types.KeyMetadata{KeyId: aws.String(id)}}, nil
}

func (f *fakeKMS) CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error) {
	return &kms.CreateAliasOutput{}, nil
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.getPublicCalls++
	key, ok := f.keys[*params.KeyId]
	if !ok {
		return nil, fmt.Errorf("key %s not found", *params.KeyId)
	}
	pubBytes := crypto.FromECDSAPub(&key.PublicKey)
	der, err := asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{Algorithm: oidEcPublicKey, Parameters: oidSecp256k1},
		PublicKey:       asn1.BitString{Bytes: pubBytes, BitLength: len(pubBytes) * 8},
	})
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{PublicKey: der}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	key, ok := f.keys[*params.KeyId]
	if !ok {
		return nil, fmt.Errorf("key %s not found", *params.KeyId)
	}
	sig, err := crypto.Sign(params.Message, key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.forceHighS {
		s = new(big.Int).Sub(secp256k1N, s)
	}
	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{Signature: der}, nil
}

func Test_AWSKMSKeyGenerator(t *testing.T) {
	ctx := context.Background()

	for _, highS := range []bool{false, true} {
		t.Run(fmt.Sprintf("sign and recover, highS=%v", highS), func(t *testing.T) {
			client := newFakeKMS()
			client.forceHighS = highS
			gen := NewAWSKMSKeyGeneratorWithClient(client, "us-east-1", "test", zaptest.NewLogger(t))

			key, err := gen.GenerateECDSAKey(ctx, "owner-1", "owner-1")
			require.NoError(t, err)
			assert.Equal(t, crypto.PubkeyToAddress(client.keys[key.KeyId].PublicKey), key.Address)

			digest := crypto.Keccak256Hash([]byte("digest"))
			sig, err := gen.SignDigest(ctx, key.KeyId, digest)
			require.NoError(t, err)
			require.Len(t, sig, 65)
			assert.Contains(t, []byte{27, 28}, sig[64])
			assert.True(t, new(big.Int).SetBytes(sig[32:64]).Cmp(secp256k1HalfN) <= 0)

			recoverable := append([]byte{}, sig...)
			recoverable[64] -= 27
			pub, err := crypto.SigToPub(digest.Bytes(), recoverable)
			require.NoError(t, err)
			assert.Equal(t, key.Address, crypto.PubkeyToAddress(*pub))
		})
	}

	t.Run("caches public keys", func(t *testing.T) {
		client := newFakeKMS()
		gen := NewAWSKMSKeyGeneratorWithClient(client, "us-east-1", "test", zaptest.NewLogger(t))

		key, err := gen.GenerateECDSAKey(ctx, "owner", "")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := gen.SignDigest(ctx, key.KeyId, crypto.Keccak256Hash([]byte{byte(i)}))
			require.NoError(t, err)
		}
		assert.Equal(t, 1, client.getPublicCalls)
	})

	t.Run("unknown key", func(t *testing.T) {
		gen := NewAWSKMSKeyGeneratorWithClient(newFakeKMS(), "us-east-1", "test", zaptest.NewLogger(t))
		_, err := gen.SignDigest(ctx, "missing", crypto.Keccak256Hash([]byte("x")))
		require.Error(t, err)
		_, err = gen.GetECDSAKeyById(ctx, "missing")
		require.Error(t, err)
	})
}
