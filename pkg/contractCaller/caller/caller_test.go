package caller

import (
	"context"
	"math/big"
	"testing"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/testutil"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/transactionSigner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type callerFixture struct {
	caller *ContractCaller
	rollup *testutil.FakeRollup
	loader *artifacts.FileLoader
}

func newCallerFixture(t *testing.T) *callerFixture {
	t.Helper()
	l := zaptest.NewLogger(t)

	rollup, loader, err := testutil.NewFixtureRollup(l)
	require.NoError(t, err)

	pk, err := testutil.NewPrivateKeyHex()
	require.NoError(t, err)
	submitter := provider.NewSubmitter(rollup, testutil.FastSubmitterConfig, l)
	ts, err := transactionSigner.NewPrivateKeySigner(context.Background(), pk, rollup, submitter, big.NewInt(config.DefaultGasPerPubdata), l)
	require.NoError(t, err)
	rollup.SetBalance(ts.GetFromAddress(), testutil.OneEther)

	return &callerFixture{
		caller: NewContractCaller(rollup, ts, l),
		rollup: rollup,
		loader: loader,
	}
}

func (f *callerFixture) artifact(t *testing.T, name string) *artifacts.Artifact {
	a, err := f.loader.LoadArtifact(name)
	require.NoError(t, err)
	return a
}

var (
	owner1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	owner2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func Test_DeployContract(t *testing.T) {
	ctx := context.Background()

	t.Run("direct account with constructor owners", func(t *testing.T) {
		f := newCallerFixture(t)
		account := f.artifact(t, config.DefaultAccountNoProxyName)

		addr, receipt, err := f.caller.DeployContract(ctx, account, []interface{}{owner1, owner2}, nil)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
		assert.True(t, f.rollup.IsDeployed(addr))

		o1, o2, err := f.caller.GetOwners(ctx, addr, account.ABI)
		require.NoError(t, err)
		assert.Equal(t, owner1, o1)
		assert.Equal(t, owner2, o2)
	})

	t.Run("wrong constructor arguments", func(t *testing.T) {
		f := newCallerFixture(t)
		account := f.artifact(t, config.DefaultAccountNoProxyName)

		_, _, err := f.caller.DeployContract(ctx, account, []interface{}{owner1}, nil)
		require.Error(t, err)
		assert.Empty(t, f.rollup.SentTransactions())
	})
}

func Test_DeployAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("direct factory emits the derived address", func(t *testing.T) {
		f := newCallerFixture(t)
		factoryArtifact := f.artifact(t, config.DefaultFactoryNoProxyName)
		account := f.artifact(t, config.DefaultAccountNoProxyName)

		codeHash, err := create2.HashBytecode(account.Bytecode)
		require.NoError(t, err)

		factory, _, err := f.caller.DeployContract(ctx, factoryArtifact, []interface{}{[32]byte(codeHash)}, [][]byte{account.Bytecode})
		require.NoError(t, err)

		salt := common.HexToHash("0x01")
		deployed, receipt, err := f.caller.DeployAccount(ctx, factory, factoryArtifact.ABI, salt, owner1, owner2)
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

		input, err := create2.EncodeDirectInput(owner1, owner2)
		require.NoError(t, err)
		assert.Equal(t, create2.DeriveAddressFromInput(factory, codeHash, salt, input), deployed)
	})

	t.Run("same salt twice reverts", func(t *testing.T) {
		f := newCallerFixture(t)
		factoryArtifact := f.artifact(t, config.DefaultFactoryNoProxyName)
		account := f.artifact(t, config.DefaultAccountNoProxyName)
		codeHash, err := create2.HashBytecode(account.Bytecode)
		require.NoError(t, err)

		factory, _, err := f.caller.DeployContract(ctx, factoryArtifact, []interface{}{[32]byte(codeHash)}, [][]byte{account.Bytecode})
		require.NoError(t, err)

		_, _, err = f.caller.DeployAccount(ctx, factory, factoryArtifact.ABI, common.Hash{}, owner1, owner2)
		require.NoError(t, err)
		_, _, err = f.caller.DeployAccount(ctx, factory, factoryArtifact.ABI, common.Hash{}, owner1, owner2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, provider.ErrSubmissionFailed))
	})
}

func Test_Greeting(t *testing.T) {
	ctx := context.Background()
	f := newCallerFixture(t)
	account := f.artifact(t, config.DefaultAccountNoProxyName)

	addr, _, err := f.caller.DeployContract(ctx, account, []interface{}{owner1, owner2}, nil)
	require.NoError(t, err)

	greeting, err := f.caller.GetGreeting(ctx, addr, account.ABI)
	require.NoError(t, err)
	assert.Equal(t, "", greeting)

	data, err := f.caller.EncodeSetGreeting(account.ABI, "hola")
	require.NoError(t, err)
	method, err := account.ABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "setGreeting", method.Name)

	t.Run("call failure is a provider query error", func(t *testing.T) {
		f.rollup.SetFailure(provider.OpCall, errors.New("boom"))
		defer f.rollup.SetFailure(provider.OpCall, nil)

		_, err := f.caller.GetGreeting(ctx, addr, account.ABI)
		require.Error(t, err)
		assert.True(t, errors.Is(err, provider.ErrProviderQueryFailed))
	})
}

func Test_FundAccount(t *testing.T) {
	ctx := context.Background()
	f := newCallerFixture(t)
	target := common.HexToAddress("0x3333333333333333333333333333333333333333")
	amount := big.NewInt(100_000_000_000_000)

	receipt, err := f.caller.FundAccount(ctx, target, amount)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	balance, err := f.caller.GetBalance(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, amount, balance)
}
