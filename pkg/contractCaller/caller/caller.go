package caller

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/contractCaller"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/transactionSigner"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type ContractCaller struct {
	provider provider.IChainProvider
	signer   transactionSigner.ITransactionSigner
	logger   *zap.Logger
}

var _ contractCaller.IContractCaller = (*ContractCaller)(nil)

func NewContractCaller(
	chainProvider provider.IChainProvider,
	signer transactionSigner.ITransactionSigner,
	logger *zap.Logger,
) *ContractCaller {
	return &ContractCaller{
		provider: chainProvider,
		signer:   signer,
		logger:   logger,
	}
}

func (cc *ContractCaller) GetDeployerAddress() common.Address {
	return cc.signer.GetFromAddress()
}

func (cc *ContractCaller) GetBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := cc.provider.BalanceAt(ctx, account)
	if err != nil {
		return nil, &provider.ProviderQueryError{Op: provider.OpBalance, Err: err}
	}
	return balance, nil
}

func (cc *ContractCaller) GetGreeting(ctx context.Context, account common.Address, accountABI *abi.ABI) (string, error) {
	out, err := cc.callView(ctx, account, accountABI, "greeting")
	if err != nil {
		return "", err
	}
	greeting, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected greeting type %T", out[0])
	}
	return greeting, nil
}

func (cc *ContractCaller) GetOwners(ctx context.Context, account common.Address, accountABI *abi.ABI) (common.Address, common.Address, error) {
	owners := [2]common.Address{}
	for i, method := range []string{"owner1", "owner2"} {
		out, err := cc.callView(ctx, account, accountABI, method)
		if err != nil {
			return common.Address{}, common.Address{}, err
		}
		owner, ok := out[0].(common.Address)
		if !ok {
			return common.Address{}, common.Address{}, fmt.Errorf("unexpected %s type %T", method, out[0])
		}
		owners[i] = owner
	}
	return owners[0], owners[1], nil
}

func (cc *ContractCaller) EncodeSetGreeting(accountABI *abi.ABI, greeting string) ([]byte, error) {
	data, err := accountABI.Pack("setGreeting", greeting)
	if err != nil {
		return nil, fmt.Errorf("failed to encode setGreeting: %w", err)
	}
	return data, nil
}

func (cc *ContractCaller) callView(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	ret, err := cc.provider.CallContract(ctx, goEthereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, &provider.ProviderQueryError{Op: provider.OpCall, Err: err}
	}

	out, err := contractABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}
