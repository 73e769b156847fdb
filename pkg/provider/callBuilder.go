package provider

import (
	"context"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CallBuilder fills an unsigned 0x71 call from live chain state. Every query
// must succeed; nothing is defaulted.
type CallBuilder struct {
	provider IChainProvider
	logger   *zap.Logger
}

func NewCallBuilder(provider IChainProvider, logger *zap.Logger) *CallBuilder {
	return &CallBuilder{
		provider: provider,
		logger:   logger,
	}
}

// BuildUnsignedCall returns a call from account to `to` with data, value 0,
// and gas, price, chain id and nonce taken from the provider. meta is copied
// onto the call; its CustomSignature is ignored.
func (b *CallBuilder) BuildUnsignedCall(ctx context.Context, account common.Address, to common.Address, data []byte, meta envelope.EIP712Meta) (*envelope.EIP712Tx, error) {
	return b.BuildUnsignedCallWithValue(ctx, account, to, data, new(big.Int), meta)
}

func (b *CallBuilder) BuildUnsignedCallWithValue(ctx context.Context, account common.Address, to common.Address, data []byte, value *big.Int, meta envelope.EIP712Meta) (*envelope.EIP712Tx, error) {
	gasLimit, err := b.provider.EstimateGas(ctx, goEthereum.CallMsg{
		From:  account,
		To:    &to,
		Value: value,
		Data:  data,
	}, &meta)
	if err != nil {
		return nil, queryError(OpEstimateGas, err)
	}

	gasPrice, err := b.provider.SuggestGasPrice(ctx)
	if err != nil {
		return nil, queryError(OpGasPrice, err)
	}

	chainID, err := b.provider.ChainID(ctx)
	if err != nil {
		return nil, queryError(OpChainID, err)
	}

	nonce, err := b.provider.NonceAt(ctx, account)
	if err != nil {
		return nil, queryError(OpNonce, err)
	}

	tx := (&envelope.EIP712Tx{
		ChainID:              chainID,
		Nonce:                nonce,
		From:                 account,
		To:                   to,
		GasLimit:             gasLimit,
		MaxFeePerGas:         gasPrice,
		MaxPriorityFeePerGas: gasPrice,
		Value:                value,
		Data:                 data,
		Meta:                 meta,
	}).Copy()
	tx.Meta.CustomSignature = nil

	b.logger.Sugar().Debugw("Built unsigned call",
		"from", account.String(),
		"to", to.String(),
		"chainId", chainID.String(),
		"nonce", nonce,
		"gasLimit", gasLimit,
		"gasPrice", gasPrice.String(),
	)
	return tx, nil
}

// BuildTransfer returns an unsigned EIP-1559 transfer of value from account
// to `to`, filled from the provider the same way as BuildUnsignedCall.
func (b *CallBuilder) BuildTransfer(ctx context.Context, account common.Address, to common.Address, value *big.Int) (*envelope.StandardEnvelope, error) {
	gasLimit, err := b.provider.EstimateGas(ctx, goEthereum.CallMsg{
		From:  account,
		To:    &to,
		Value: value,
	}, nil)
	if err != nil {
		return nil, queryError(OpEstimateGas, err)
	}

	gasPrice, err := b.provider.SuggestGasPrice(ctx)
	if err != nil {
		return nil, queryError(OpGasPrice, err)
	}

	chainID, err := b.provider.ChainID(ctx)
	if err != nil {
		return nil, queryError(OpChainID, err)
	}

	nonce, err := b.provider.NonceAt(ctx, account)
	if err != nil {
		return nil, queryError(OpNonce, err)
	}

	b.logger.Sugar().Debugw("Built unsigned transfer",
		"from", account.String(),
		"to", to.String(),
		"value", value.String(),
		"nonce", nonce,
	)
	return envelope.NewTransfer(chainID, nonce, to, value, gasLimit, gasPrice), nil
}
