package contractCaller

import (
	"context"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
)

type IContractCaller interface {
	// DeployContract deploys artifact with ctorArgs through the ContractDeployer
	// system contract. The artifact's own bytecode is always published;
	// factoryDeps adds bytecodes the new contract deploys itself.
	DeployContract(
		ctx context.Context,
		artifact *artifacts.Artifact,
		ctorArgs []interface{},
		factoryDeps [][]byte,
	) (common.Address, *ethereumTypes.Receipt, error)

	// DeployAccount calls factory.deployAccount(salt, args...) and returns the
	// address the factory deployed, as reported by the ContractDeployer.
	DeployAccount(
		ctx context.Context,
		factory common.Address,
		factoryABI *abi.ABI,
		salt common.Hash,
		args ...interface{},
	) (common.Address, *ethereumTypes.Receipt, error)

	FundAccount(ctx context.Context, account common.Address, amount *big.Int) (*ethereumTypes.Receipt, error)

	GetBalance(ctx context.Context, account common.Address) (*big.Int, error)

	GetGreeting(ctx context.Context, account common.Address, accountABI *abi.ABI) (string, error)

	GetOwners(ctx context.Context, account common.Address, accountABI *abi.ABI) (common.Address, common.Address, error)

	EncodeSetGreeting(accountABI *abi.ABI, greeting string) ([]byte, error)

	// GetDeployerAddress returns the account that pays for and sends deployments
	GetDeployerAddress() common.Address
}
