package caller

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

func (cc *ContractCaller) DeployContract(
	ctx context.Context,
	artifact *artifacts.Artifact,
	ctorArgs []interface{},
	factoryDeps [][]byte,
) (common.Address, *ethereumTypes.Receipt, error) {
	codeHash, err := create2.HashBytecode(artifact.Bytecode)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to hash bytecode of %s: %w", artifact.ContractName, err)
	}

	input, err := artifact.ABI.Pack("", ctorArgs...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to encode constructor arguments of %s: %w", artifact.ContractName, err)
	}

	data, err := artifacts.ContractDeployerABI.Pack("create", [32]byte{}, [32]byte(codeHash), input)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to encode create call: %w", err)
	}

	deps := append([][]byte{artifact.Bytecode}, factoryDeps...)
	receipt, err := cc.sendTransaction(ctx, config.ContractDeployerAddress, data, deps, "deploy "+artifact.ContractName)
	if err != nil {
		return common.Address{}, receipt, err
	}

	addr, err := findDeployedAddress(receipt, cc.signer.GetFromAddress(), codeHash)
	if err != nil {
		return common.Address{}, receipt, fmt.Errorf("failed to find %s deployment: %w", artifact.ContractName, err)
	}

	cc.logger.Sugar().Infow("Deployed contract",
		zap.String("contract", artifact.ContractName),
		zap.String("address", addr.String()),
		zap.String("bytecodeHash", codeHash.Hex()),
		zap.String("txHash", receipt.TxHash.Hex()),
	)
	return addr, receipt, nil
}

func (cc *ContractCaller) DeployAccount(
	ctx context.Context,
	factory common.Address,
	factoryABI *abi.ABI,
	salt common.Hash,
	args ...interface{},
) (common.Address, *ethereumTypes.Receipt, error) {
	data, err := factoryABI.Pack("deployAccount", append([]interface{}{[32]byte(salt)}, args...)...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to encode deployAccount: %w", err)
	}

	receipt, err := cc.sendTransaction(ctx, factory, data, nil, "deployAccount")
	if err != nil {
		return common.Address{}, receipt, err
	}

	addr, err := findDeployedAddress(receipt, factory, common.Hash{})
	if err != nil {
		return common.Address{}, receipt, fmt.Errorf("failed to find account deployment: %w", err)
	}

	cc.logger.Sugar().Infow("Factory deployed account",
		zap.String("factory", factory.String()),
		zap.String("account", addr.String()),
		zap.String("txHash", receipt.TxHash.Hex()),
	)
	return addr, receipt, nil
}

// findDeployedAddress returns the contract address of the last
// ContractDeployed event emitted for deployer. A zero codeHash matches any
// bytecode.
func findDeployedAddress(receipt *ethereumTypes.Receipt, deployer common.Address, codeHash common.Hash) (common.Address, error) {
	event := artifacts.ContractDeployedEvent
	var (
		found bool
		addr  common.Address
	)
	for _, l := range receipt.Logs {
		if l.Address != config.ContractDeployerAddress || len(l.Topics) != 4 || l.Topics[0] != event.ID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != deployer {
			continue
		}
		if codeHash != (common.Hash{}) && l.Topics[2] != codeHash {
			continue
		}
		addr = common.BytesToAddress(l.Topics[3].Bytes())
		found = true
	}
	if !found {
		return common.Address{}, fmt.Errorf("no %s event from %s in tx %s", event.Name, deployer.String(), receipt.TxHash.Hex())
	}
	return addr, nil
}
