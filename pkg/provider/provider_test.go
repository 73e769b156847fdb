package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubProvider struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	gas      uint64
	nonce    uint64
	failures map[string]error

	lastEstimate *envelope.EIP712Meta
	sends        int
	sendErr      error
	hangSend     bool
	receipt      *types.Receipt
	notFoundFor  int
	receiptCalls int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		chainID:  big.NewInt(260),
		gasPrice: big.NewInt(250_000_000),
		gas:      300_000,
		nonce:    7,
		failures: make(map[string]error),
	}
}

var _ IChainProvider = (*stubProvider)(nil)

func (s *stubProvider) ChainID(ctx context.Context) (*big.Int, error) {
	if err := s.failures[OpChainID]; err != nil {
		return nil, err
	}
	return s.chainID, nil
}

func (s *stubProvider) EstimateGas(ctx context.Context, msg goEthereum.CallMsg, meta *envelope.EIP712Meta) (uint64, error) {
	if err := s.failures[OpEstimateGas]; err != nil {
		return 0, err
	}
	s.lastEstimate = meta
	return s.gas, nil
}

func (s *stubProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := s.failures[OpGasPrice]; err != nil {
		return nil, err
	}
	return s.gasPrice, nil
}

func (s *stubProvider) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := s.failures[OpNonce]; err != nil {
		return 0, err
	}
	return s.nonce, nil
}

func (s *stubProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func (s *stubProvider) CallContract(ctx context.Context, msg goEthereum.CallMsg) ([]byte, error) {
	return nil, nil
}

func (s *stubProvider) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	s.mu.Lock()
	s.sends++
	hang := s.hangSend
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return common.Hash{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return common.Hash{}, s.sendErr
	}
	return common.HexToHash("0xabc"), nil
}

func (s *stubProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptCalls++
	if s.receipt == nil || s.receiptCalls <= s.notFoundFor {
		return nil, goEthereum.NotFound
	}
	return s.receipt, nil
}

func Test_CallBuilder(t *testing.T) {
	l := zaptest.NewLogger(t)
	ctx := context.Background()
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	target := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	t.Run("fills the call from the provider", func(t *testing.T) {
		stub := newStubProvider()
		b := NewCallBuilder(stub, l)
		meta := envelope.EIP712Meta{GasPerPubdata: big.NewInt(50000), CustomSignature: []byte{1, 2, 3}}

		tx, err := b.BuildUnsignedCall(ctx, account, target, []byte{0xde, 0xad}, meta)
		require.NoError(t, err)
		assert.Equal(t, account, tx.From)
		assert.Equal(t, target, tx.To)
		assert.Equal(t, uint64(300_000), tx.GasLimit)
		assert.Equal(t, uint64(7), tx.Nonce)
		assert.Equal(t, big.NewInt(260), tx.ChainID)
		assert.Equal(t, big.NewInt(250_000_000), tx.MaxFeePerGas)
		assert.Equal(t, 0, tx.Value.Sign())
		assert.Nil(t, tx.Meta.CustomSignature)
		require.NotNil(t, stub.lastEstimate)
		assert.Equal(t, big.NewInt(50000), stub.lastEstimate.GasPerPubdata)
	})

	for _, op := range []string{OpEstimateGas, OpGasPrice, OpChainID, OpNonce} {
		t.Run("fails on "+op, func(t *testing.T) {
			stub := newStubProvider()
			stub.failures[op] = errors.New("rpc unavailable")

			_, err := NewCallBuilder(stub, l).BuildUnsignedCall(ctx, account, target, nil, envelope.EIP712Meta{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProviderQueryFailed))

			var queryErr *ProviderQueryError
			require.True(t, errors.As(err, &queryErr))
			assert.Equal(t, op, queryErr.Op)
			assert.Contains(t, err.Error(), "rpc unavailable")
		})
	}

	t.Run("transfer", func(t *testing.T) {
		stub := newStubProvider()
		env, err := NewCallBuilder(stub, l).BuildTransfer(ctx, account, target, big.NewInt(42))
		require.NoError(t, err)
		assert.Equal(t, envelope.DynamicFeeTxType, env.Type())
		assert.Equal(t, uint64(7), env.Tx.Nonce())
		assert.Equal(t, big.NewInt(42), env.Tx.Value())
		assert.Nil(t, stub.lastEstimate)
	})
}

func Test_Submitter(t *testing.T) {
	l := zaptest.NewLogger(t)
	ctx := context.Background()
	fast := &SubmitterConfig{Timeout: 200 * time.Millisecond, PollInterval: time.Millisecond}

	t.Run("waits through pending polls", func(t *testing.T) {
		stub := newStubProvider()
		stub.notFoundFor = 3
		stub.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}

		receipt, err := NewSubmitter(stub, fast, l).Submit(ctx, []byte{0x71})
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
		assert.Equal(t, 4, stub.receiptCalls)
		assert.Equal(t, 1, stub.sends)
	})

	t.Run("rejection keeps the node reason", func(t *testing.T) {
		stub := newStubProvider()
		stub.sendErr = errors.New("Validation revert: Failed to pay for the transaction: not enough balance")

		_, err := NewSubmitter(stub, fast, l).Submit(ctx, []byte{0x71})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSubmissionFailed))

		var subErr *SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.Equal(t, stub.sendErr.Error(), subErr.Reason)
		assert.True(t, subErr.IsInsufficientFunds())
		assert.Equal(t, 1, stub.sends)
	})

	t.Run("revert", func(t *testing.T) {
		stub := newStubProvider()
		stub.receipt = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}

		receipt, err := NewSubmitter(stub, fast, l).Submit(ctx, []byte{0x71})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSubmissionFailed))
		require.NotNil(t, receipt)

		var subErr *SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.False(t, subErr.IsInsufficientFunds())
	})

	t.Run("timeout is ambiguous and never resends", func(t *testing.T) {
		stub := newStubProvider()

		_, err := NewSubmitter(stub, fast, l).Submit(ctx, []byte{0x71})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAmbiguousSubmissionOutcome))
		assert.False(t, errors.Is(err, ErrSubmissionFailed))

		var ambiguous *AmbiguousOutcomeError
		require.True(t, errors.As(err, &ambiguous))
		assert.Equal(t, common.HexToHash("0xabc"), ambiguous.TxHash)
		assert.Equal(t, 1, stub.sends)
	})

	t.Run("unanswered send times out as ambiguous", func(t *testing.T) {
		stub := newStubProvider()
		stub.hangSend = true

		done := make(chan error, 1)
		go func() {
			_, err := NewSubmitter(stub, &SubmitterConfig{Timeout: 100 * time.Millisecond, PollInterval: time.Millisecond}, l).
				Submit(context.Background(), []byte{0x71})
			done <- err
		}()

		select {
		case err := <-done:
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAmbiguousSubmissionOutcome))
			assert.False(t, errors.Is(err, ErrSubmissionFailed))
			assert.Equal(t, 1, stub.sends)
		case <-time.After(2 * time.Second):
			t.Fatal("submission outlived its timeout")
		}
	})

	t.Run("cancelled context is ambiguous", func(t *testing.T) {
		stub := newStubProvider()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		stub.sendErr = context.Canceled

		_, err := NewSubmitter(stub, fast, l).Submit(cctx, []byte{0x71})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAmbiguousSubmissionOutcome))
	})

	t.Run("defaults", func(t *testing.T) {
		s := NewSubmitter(newStubProvider(), nil, l)
		assert.Equal(t, 2*time.Minute, s.config.Timeout)
		assert.Equal(t, 500*time.Millisecond, s.config.PollInterval)
	})
}

func Test_toEIP712CallArg(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	arg := toEIP712CallArg(goEthereum.CallMsg{
		From: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		To:   &to,
		Data: []byte{0x01},
	}, &envelope.EIP712Meta{
		GasPerPubdata: big.NewInt(50000),
		FactoryDeps:   [][]byte{{0x0a, 0xff}},
	})

	raw, err := json.Marshal(arg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "0x71", decoded["type"])
	assert.Equal(t, "0x01", decoded["data"])

	meta, ok := decoded["eip712Meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0xc350", meta["gasPerPubdata"])
	assert.Equal(t, []interface{}{[]interface{}{float64(10), float64(255)}}, meta["factoryDeps"])
	assert.NotContains(t, meta, "paymasterParams")
}
