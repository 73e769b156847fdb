package envelope

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTx() *EIP712Tx {
	return &EIP712Tx{
		ChainID:              big.NewInt(270),
		Nonce:                3,
		From:                 common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:                   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		GasLimit:             1_500_000,
		MaxFeePerGas:         big.NewInt(250_000_000),
		MaxPriorityFeePerGas: big.NewInt(250_000_000),
		Value:                big.NewInt(0),
		Data:                 common.FromHex("0xa4136862000000000000000000000000000000000000000000000000000000000000002000000000000000000000000000000000000000000000000000000000000000046f6c610000000000000000000000000000000000000000000000000000000000"),
		Meta: EIP712Meta{
			GasPerPubdata: big.NewInt(50000),
		},
	}
}

func word(v *big.Int) []byte {
	return math.U256Bytes(new(big.Int).Set(v))
}

// manualDigest encodes the zkSync transaction struct by hand, field by field.
func manualDigest(t *testing.T, tx *EIP712Tx) common.Hash {
	t.Helper()

	domainType := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	domainSeparator := crypto.Keccak256(
		domainType,
		crypto.Keccak256([]byte("zkSync")),
		crypto.Keccak256([]byte("2")),
		word(tx.ChainID),
	)

	txType := crypto.Keccak256([]byte("Transaction(uint256 txType,uint256 from,uint256 to,uint256 gasLimit,uint256 gasPerPubdataByteLimit,uint256 maxFeePerGas,uint256 maxPriorityFeePerGas,uint256 paymaster,uint256 nonce,uint256 value,bytes data,bytes32[] factoryDeps,bytes paymasterInput)"))

	var deps []byte
	for _, dep := range tx.Meta.FactoryDeps {
		h, err := hashDep(dep)
		require.NoError(t, err)
		deps = append(deps, h.Bytes()...)
	}

	paymaster := common.Hash{}
	var paymasterInput []byte
	if tx.Meta.PaymasterParams != nil {
		paymaster = common.BytesToHash(tx.Meta.PaymasterParams.Paymaster.Bytes())
		paymasterInput = tx.Meta.PaymasterParams.PaymasterInput
	}

	structHash := crypto.Keccak256(
		txType,
		word(big.NewInt(0x71)),
		common.LeftPadBytes(tx.From.Bytes(), 32),
		common.LeftPadBytes(tx.To.Bytes(), 32),
		word(new(big.Int).SetUint64(tx.GasLimit)),
		word(tx.Meta.GasPerPubdata),
		word(tx.MaxFeePerGas),
		word(tx.MaxPriorityFeePerGas),
		paymaster.Bytes(),
		word(new(big.Int).SetUint64(tx.Nonce)),
		word(tx.Value),
		crypto.Keccak256(tx.Data),
		crypto.Keccak256(deps),
		crypto.Keccak256(paymasterInput),
	)

	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator, structHash)
}

func hashDep(dep []byte) (common.Hash, error) {
	tx := &EIP712Tx{Meta: EIP712Meta{FactoryDeps: [][]byte{dep}}}
	hashes, err := tx.FactoryDepHashes()
	if err != nil {
		return common.Hash{}, err
	}
	return hashes[0], nil
}

func Test_SigningHash(t *testing.T) {
	t.Run("matches a hand-built EIP-712 encoding", func(t *testing.T) {
		tx := testTx()
		digest, err := tx.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, manualDigest(t, tx), digest)
	})

	t.Run("covers paymaster and factory deps", func(t *testing.T) {
		tx := testTx()
		tx.Meta.FactoryDeps = [][]byte{bytes.Repeat([]byte{0xab}, 96)}
		tx.Meta.PaymasterParams = &PaymasterParams{
			Paymaster:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
			PaymasterInput: []byte{0x01, 0x02, 0x03},
		}
		digest, err := tx.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, manualDigest(t, tx), digest)
	})

	t.Run("custom signature does not change the digest", func(t *testing.T) {
		tx := testTx()
		before, err := tx.SigningHash()
		require.NoError(t, err)

		tx.Meta.CustomSignature = bytes.Repeat([]byte{0x01}, 130)
		after, err := tx.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("binds chain id and sender", func(t *testing.T) {
		base, err := testTx().SigningHash()
		require.NoError(t, err)

		otherChain := testTx()
		otherChain.ChainID = big.NewInt(300)
		d1, err := otherChain.SigningHash()
		require.NoError(t, err)
		assert.NotEqual(t, base, d1)

		otherSender := testTx()
		otherSender.From = common.HexToAddress("0x4444444444444444444444444444444444444444")
		d2, err := otherSender.SigningHash()
		require.NoError(t, err)
		assert.NotEqual(t, base, d2)
	})

	t.Run("survives a JSON round trip", func(t *testing.T) {
		tx := testTx()
		tx.Meta.FactoryDeps = [][]byte{bytes.Repeat([]byte{0xab}, 32)}
		typedData, err := tx.TypedData()
		require.NoError(t, err)

		encoded, err := json.Marshal(typedData)
		require.NoError(t, err)

		var decoded apitypes.TypedData
		require.NoError(t, json.Unmarshal(encoded, &decoded))

		want, err := tx.SigningHash()
		require.NoError(t, err)
		got, err := HashTypedData(&decoded)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("missing chain id", func(t *testing.T) {
		tx := testTx()
		tx.ChainID = nil
		_, err := tx.SigningHash()
		require.Error(t, err)
	})

	t.Run("invalid factory dependency", func(t *testing.T) {
		tx := testTx()
		tx.Meta.FactoryDeps = [][]byte{{0x01, 0x02}}
		_, err := tx.SigningHash()
		require.Error(t, err)
	})
}

func Test_Copy(t *testing.T) {
	tx := testTx()
	tx.Meta.FactoryDeps = [][]byte{bytes.Repeat([]byte{0xab}, 32)}
	tx.Meta.PaymasterParams = &PaymasterParams{PaymasterInput: []byte{0x01}}

	cpy := tx.Copy()
	require.Equal(t, tx, cpy)

	cpy.Data[0] = 0xff
	cpy.MaxFeePerGas.SetInt64(1)
	cpy.Meta.FactoryDeps[0][0] = 0x00
	cpy.Meta.PaymasterParams.PaymasterInput[0] = 0x09

	assert.Equal(t, byte(0xa4), tx.Data[0])
	assert.Equal(t, int64(250_000_000), tx.MaxFeePerGas.Int64())
	assert.Equal(t, byte(0xab), tx.Meta.FactoryDeps[0][0])
	assert.Equal(t, byte(0x01), tx.Meta.PaymasterParams.PaymasterInput[0])
}

func Test_MarshalBinary(t *testing.T) {
	t.Run("field layout", func(t *testing.T) {
		tx := testTx()
		tx.Meta.CustomSignature = bytes.Repeat([]byte{0x07}, 130)

		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		require.Equal(t, byte(0x71), raw[0])

		var fields []rlp.RawValue
		require.NoError(t, rlp.DecodeBytes(raw[1:], &fields))
		require.Len(t, fields, 16)

		var chainID, v uint64
		require.NoError(t, rlp.DecodeBytes(fields[7], &v))
		require.NoError(t, rlp.DecodeBytes(fields[10], &chainID))
		assert.Equal(t, uint64(270), v)
		assert.Equal(t, uint64(270), chainID)
		assert.Equal(t, []byte{0x80}, []byte(fields[8]))
		assert.Equal(t, []byte{0x80}, []byte(fields[9]))

		var sig []byte
		require.NoError(t, rlp.DecodeBytes(fields[14], &sig))
		assert.Equal(t, tx.Meta.CustomSignature, sig)

		// no paymaster encodes as an empty list
		assert.Equal(t, []byte{0xc0}, []byte(fields[15]))
	})

	t.Run("round trip", func(t *testing.T) {
		tx := testTx()
		tx.Meta.CustomSignature = bytes.Repeat([]byte{0x07}, 130)
		tx.Meta.FactoryDeps = [][]byte{bytes.Repeat([]byte{0xab}, 32)}
		tx.Meta.PaymasterParams = &PaymasterParams{
			Paymaster:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
			PaymasterInput: []byte{0x01, 0x02},
		}

		raw, err := tx.MarshalBinary()
		require.NoError(t, err)

		decoded, err := DecodeEIP712Tx(raw)
		require.NoError(t, err)
		assert.Equal(t, tx.From, decoded.From)
		assert.Equal(t, tx.To, decoded.To)
		assert.Equal(t, tx.Nonce, decoded.Nonce)
		assert.Equal(t, tx.Meta.CustomSignature, decoded.Meta.CustomSignature)
		assert.Equal(t, tx.Meta.PaymasterParams, decoded.Meta.PaymasterParams)

		again, err := decoded.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, raw, again)

		origDigest, err := tx.SigningHash()
		require.NoError(t, err)
		decodedDigest, err := decoded.SigningHash()
		require.NoError(t, err)
		assert.Equal(t, origDigest, decodedDigest)
	})

	t.Run("requires gas per pubdata", func(t *testing.T) {
		tx := testTx()
		tx.Meta.GasPerPubdata = nil
		_, err := tx.MarshalBinary()
		require.Error(t, err)
	})

	t.Run("rejects other types", func(t *testing.T) {
		_, err := DecodeEIP712Tx([]byte{0x02, 0xc0})
		require.Error(t, err)
		_, err = DecodeEIP712Tx(nil)
		require.Error(t, err)
	})
}

func Test_StandardEnvelope(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	env := NewTransfer(big.NewInt(270), 0, common.HexToAddress("0x2222222222222222222222222222222222222222"), big.NewInt(100), 21000, big.NewInt(1000))
	assert.Equal(t, DynamicFeeTxType, env.Type())

	hash, err := env.SigningHash()
	require.NoError(t, err)

	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	signed, err := env.WithSignature(sig)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(270)), signed.Tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(types.DynamicFeeTxType), raw[0])

	_, err = env.WithSignature(sig[:64])
	require.Error(t, err)
}
