package provider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// IChainProvider is the read and submit surface of the rollup node.
type IChainProvider interface {
	ChainID(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates msg; a non-nil meta estimates it as a 0x71 call
	EstimateGas(ctx context.Context, msg goEthereum.CallMsg, meta *envelope.EIP712Meta) (uint64, error)

	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg goEthereum.CallMsg) ([]byte, error)

	// SendRawTransaction submits typed wire bytes and returns the node's hash
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// TransactionReceipt returns goEthereum.NotFound while the tx is pending
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type ProviderConfig struct {
	RpcUrl string
}

// EthProvider implements IChainProvider over an ethclient. Raw submission
// goes through the underlying rpc client since ethclient only sends
// transactions it can decode.
type EthProvider struct {
	ethClient *ethclient.Client
	logger    *zap.Logger
}

var _ IChainProvider = (*EthProvider)(nil)

func NewEthProvider(ethClient *ethclient.Client, logger *zap.Logger) *EthProvider {
	return &EthProvider{
		ethClient: ethClient,
		logger:    logger,
	}
}

// NewEthProviderFromConfig dials the node through the chain-indexer client.
func NewEthProviderFromConfig(ctx context.Context, cfg *ProviderConfig, logger *zap.Logger) (*EthProvider, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	client := ethereum.NewEthereumClient(&ethereum.EthereumClientConfig{
		BaseUrl:   cfg.RpcUrl,
		BlockType: ethereum.BlockType_Latest,
	}, logger)

	block, err := client.GetLatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reach rpc %s: %w", cfg.RpcUrl, err)
	}
	logger.Sugar().Infow("Connected to rollup node", "rpcUrl", cfg.RpcUrl, "latestBlock", block)

	ethClient, err := client.GetEthereumContractCaller()
	if err != nil {
		return nil, fmt.Errorf("failed to get ethereum contract caller: %w", err)
	}
	return NewEthProvider(ethClient, logger), nil
}

// EthClient exposes the client for abi bindings
func (p *EthProvider) EthClient() *ethclient.Client {
	return p.ethClient
}

func (p *EthProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.ethClient.ChainID(ctx)
}

func (p *EthProvider) EstimateGas(ctx context.Context, msg goEthereum.CallMsg, meta *envelope.EIP712Meta) (uint64, error) {
	if meta == nil {
		return p.ethClient.EstimateGas(ctx, msg)
	}

	var gas hexutil.Uint64
	if err := p.ethClient.Client().CallContext(ctx, &gas, "eth_estimateGas", toEIP712CallArg(msg, meta)); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// toEIP712CallArg builds the call object the rollup node accepts for 0x71
// estimation. Byte arrays inside eip712Meta are sent as lists of numbers.
func toEIP712CallArg(msg goEthereum.CallMsg, meta *envelope.EIP712Meta) map[string]interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"data": hexutil.Bytes(msg.Data),
		"type": hexutil.Uint64(envelope.EIP712TxType),
	}
	if msg.To != nil {
		arg["to"] = msg.To
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}

	eip712Meta := map[string]interface{}{}
	if meta.GasPerPubdata != nil {
		eip712Meta["gasPerPubdata"] = (*hexutil.Big)(meta.GasPerPubdata)
	}
	if len(meta.FactoryDeps) > 0 {
		deps := make([][]uint16, len(meta.FactoryDeps))
		for i, dep := range meta.FactoryDeps {
			deps[i] = bytesToNumbers(dep)
		}
		eip712Meta["factoryDeps"] = deps
	}
	if meta.PaymasterParams != nil {
		eip712Meta["paymasterParams"] = map[string]interface{}{
			"paymaster":      meta.PaymasterParams.Paymaster,
			"paymasterInput": bytesToNumbers(meta.PaymasterParams.PaymasterInput),
		}
	}
	arg["eip712Meta"] = eip712Meta
	return arg
}

func bytesToNumbers(b []byte) []uint16 {
	out := make([]uint16, len(b))
	for i, v := range b {
		out[i] = uint16(v)
	}
	return out
}

func (p *EthProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return p.ethClient.SuggestGasPrice(ctx)
}

func (p *EthProvider) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return p.ethClient.NonceAt(ctx, account, nil)
}

func (p *EthProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return p.ethClient.BalanceAt(ctx, account, nil)
}

func (p *EthProvider) CallContract(ctx context.Context, msg goEthereum.CallMsg) ([]byte, error) {
	return p.ethClient.CallContract(ctx, msg, nil)
}

func (p *EthProvider) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var txHash common.Hash
	if err := p.ethClient.Client().CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

func (p *EthProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return p.ethClient.TransactionReceipt(ctx, txHash)
}
