package cosigner

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newOwners(t *testing.T) []signer.ISigner {
	t.Helper()
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	gen := localKeyGenerator.NewLocalKeyGenerator(l)

	owners := make([]signer.ISigner, 0, 2)
	for i := 0; i < 2; i++ {
		key, err := gen.GenerateECDSAKey(ctx, fmt.Sprintf("owner-%d", i+1), "")
		require.NoError(t, err)
		s, err := signer.NewKeySigner(ctx, gen, key.KeyId, l)
		require.NoError(t, err)
		owners = append(owners, s)
	}
	return owners
}

func unsignedCall() *envelope.EIP712Tx {
	return &envelope.EIP712Tx{
		ChainID:              big.NewInt(270),
		Nonce:                0,
		From:                 common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		To:                   common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		GasLimit:             2_000_000,
		MaxFeePerGas:         big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(250_000_000),
		Value:                big.NewInt(0),
		Data:                 []byte{0xa4, 0x13, 0x68, 0x62},
		Meta:                 envelope.EIP712Meta{GasPerPubdata: big.NewInt(50000)},
	}
}

// stubSigner returns a fixed error, or signs with a key that is not the
// address it reports.
type stubSigner struct {
	address common.Address
	err     error
	delay   time.Duration
	calls   int
}

func (s *stubSigner) Address() common.Address { return s.address }

func (s *stubSigner) SignTypedData(ctx context.Context, _ *apitypes.TypedData, digest common.Hash) ([]byte, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	other, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest.Bytes(), other)
}

func Test_NewCoSigner(t *testing.T) {
	owners := newOwners(t)
	l := zaptest.NewLogger(t)

	_, err := NewCoSigner(owners[:1], l)
	require.Error(t, err)

	_, err = NewCoSigner(append(owners, owners[0]), l)
	require.Error(t, err)

	_, err = NewCoSigner([]signer.ISigner{owners[0], owners[0]}, l)
	require.ErrorContains(t, err, "distinct")

	cs, err := NewCoSigner(owners, l)
	require.NoError(t, err)
	o1, o2 := cs.Owners()
	assert.Equal(t, owners[0].Address(), o1)
	assert.Equal(t, owners[1].Address(), o2)
}

func Test_Sign(t *testing.T) {
	ctx := context.Background()
	owners := newOwners(t)
	cs, err := NewCoSigner(owners, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("payload is owner1 then owner2", func(t *testing.T) {
		tx := unsignedCall()
		signed, err := cs.Sign(ctx, tx)
		require.NoError(t, err)
		require.Len(t, signed.Payload, PayloadLength)

		digest, err := tx.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, digest, signed.Digest)

		for i, owner := range owners {
			sig, err := signed.Payload.Signature(Role(i))
			require.NoError(t, err)
			ok, err := signer.VerifySignature(digest, sig, owner.Address())
			require.NoError(t, err)
			assert.True(t, ok, "role %d", i)
		}

		require.NoError(t, cs.Verifier().Verify(signed.Digest, signed.Payload))
	})

	t.Run("reversed payload is rejected by the verifier", func(t *testing.T) {
		signed, err := cs.Sign(ctx, unsignedCall())
		require.NoError(t, err)

		reversed := append(append([]byte{}, signed.Payload[65:]...), signed.Payload[:65]...)
		assert.False(t, cs.Verifier().IsValidSignature(signed.Digest, reversed))

		swappedOwners := ReferenceVerifier{Owner1: owners[1].Address(), Owner2: owners[0].Address()}
		assert.False(t, swappedOwners.IsValidSignature(signed.Digest, signed.Payload))
		assert.True(t, swappedOwners.IsValidSignature(signed.Digest, reversed))
	})

	t.Run("does not modify the caller's call", func(t *testing.T) {
		tx := unsignedCall()
		tx.Meta.CustomSignature = []byte{0x01}
		signed, err := cs.Sign(ctx, tx)
		require.NoError(t, err)

		assert.Equal(t, []byte{0x01}, tx.Meta.CustomSignature)
		assert.Nil(t, signed.Tx.Meta.CustomSignature)

		tx.Data[0] = 0x00
		assert.Equal(t, byte(0xa4), signed.Tx.Data[0])
	})

	t.Run("failing signer aborts with its role", func(t *testing.T) {
		failing := &stubSigner{
			address: common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
			err:     fmt.Errorf("remote signer unavailable"),
		}
		bad, err := NewCoSigner([]signer.ISigner{owners[0], failing}, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = bad.Sign(ctx, unsignedCall())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSigningFailed))

		var signingErr *SigningError
		require.True(t, errors.As(err, &signingErr))
		assert.Equal(t, RoleOwner2, signingErr.Role)
		assert.Equal(t, failing.address, signingErr.Signer)
		assert.ErrorContains(t, err, "remote signer unavailable")
	})

	t.Run("signature from the wrong key is rejected", func(t *testing.T) {
		impostor := &stubSigner{address: common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")}
		bad, err := NewCoSigner([]signer.ISigner{impostor, owners[1]}, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = bad.Sign(ctx, unsignedCall())
		var signingErr *SigningError
		require.True(t, errors.As(err, &signingErr))
		assert.Equal(t, RoleOwner1, signingErr.Role)
	})

	t.Run("failure cancels the other signer", func(t *testing.T) {
		slow := &stubSigner{
			address: common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"),
			delay:   time.Minute,
		}
		failing := &stubSigner{
			address: common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff"),
			err:     fmt.Errorf("boom"),
		}
		bad, err := NewCoSigner([]signer.ISigner{slow, failing}, zaptest.NewLogger(t))
		require.NoError(t, err)

		start := time.Now()
		_, err = bad.Sign(ctx, unsignedCall())
		require.True(t, errors.Is(err, ErrSigningFailed))
		assert.Less(t, time.Since(start), 30*time.Second)
	})
}

func Test_Assemble(t *testing.T) {
	ctx := context.Background()
	cs, err := NewCoSigner(newOwners(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("encodes the payload as the custom signature", func(t *testing.T) {
		signed, err := cs.Sign(ctx, unsignedCall())
		require.NoError(t, err)

		raw, err := Assemble(signed)
		require.NoError(t, err)
		require.Equal(t, byte(0x71), raw[0])

		decoded, err := envelope.DecodeEIP712Tx(raw)
		require.NoError(t, err)
		assert.Equal(t, []byte(signed.Payload), decoded.Meta.CustomSignature)
		assert.Equal(t, signed.Tx.From, decoded.From)

		digest, err := decoded.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, signed.Digest, digest)
		assert.True(t, cs.Verifier().IsValidSignature(digest, decoded.Meta.CustomSignature))
	})

	t.Run("refuses a call changed after signing", func(t *testing.T) {
		signed, err := cs.Sign(ctx, unsignedCall())
		require.NoError(t, err)

		signed.Tx.Nonce++
		_, err = Assemble(signed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStaleSignature))
	})

	t.Run("refuses a truncated payload", func(t *testing.T) {
		signed, err := cs.Sign(ctx, unsignedCall())
		require.NoError(t, err)

		signed.Payload = signed.Payload[:65]
		_, err = Assemble(signed)
		require.Error(t, err)
	})
}

func Test_ReferenceVerifier(t *testing.T) {
	owners := newOwners(t)
	v := ReferenceVerifier{Owner1: owners[0].Address(), Owner2: owners[1].Address()}
	digest := crypto.Keccak256Hash([]byte("call"))

	sig1, err := owners[0].SignTypedData(context.Background(), nil, digest)
	require.NoError(t, err)
	sig2, err := owners[1].SignTypedData(context.Background(), nil, digest)
	require.NoError(t, err)

	payload, err := NewAuthorizationPayload(sig1, sig2)
	require.NoError(t, err)
	require.NoError(t, v.Verify(digest, payload))

	t.Run("wrong length", func(t *testing.T) {
		assert.False(t, v.IsValidSignature(digest, payload[:129]))
	})

	t.Run("other digest", func(t *testing.T) {
		assert.False(t, v.IsValidSignature(crypto.Keccak256Hash([]byte("other")), payload))
	})

	t.Run("high s is rejected", func(t *testing.T) {
		n := crypto.S256().Params().N
		malleable := append([]byte{}, payload...)
		s := new(big.Int).SetBytes(malleable[32:64])
		new(big.Int).Sub(n, s).FillBytes(malleable[32:64])
		if malleable[64] == 27 {
			malleable[64] = 28
		} else {
			malleable[64] = 27
		}
		assert.ErrorContains(t, v.Verify(digest, malleable), "lower half")
	})

	t.Run("raw recovery id is rejected", func(t *testing.T) {
		raw := append([]byte{}, payload...)
		raw[64] -= 27
		assert.ErrorContains(t, v.Verify(digest, raw), "invalid v")
	})

	t.Run("payload constructor validates lengths", func(t *testing.T) {
		_, err := NewAuthorizationPayload(sig1[:64], sig2)
		require.Error(t, err)
		_, err = AuthorizationPayload(payload[:65]).Signature(RoleOwner1)
		require.Error(t, err)
	})
}

func Test_AddressMismatchError(t *testing.T) {
	err := errors.Wrap(&AddressMismatchError{
		Derived:  common.HexToAddress("0x01"),
		Deployed: common.HexToAddress("0x02"),
	}, "deploy account")
	assert.True(t, errors.Is(err, ErrAddressDerivationMismatch))
}
