package caller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

func (cc *ContractCaller) FundAccount(ctx context.Context, account common.Address, amount *big.Int) (*ethereumTypes.Receipt, error) {
	cc.logger.Sugar().Infow("Signing and sending transaction",
		zap.String("operation", "fund account"),
		zap.String("from", cc.signer.GetFromAddress().Hex()),
		zap.String("to", account.Hex()),
		zap.String("amount", amount.String()),
	)

	return cc.signer.SendTransfer(ctx, account, amount)
}

func (cc *ContractCaller) sendTransaction(ctx context.Context, to common.Address, data []byte, factoryDeps [][]byte, operation string) (*ethereumTypes.Receipt, error) {
	cc.logger.Sugar().Infow("Signing and sending transaction",
		zap.String("operation", operation),
		zap.String("from", cc.signer.GetFromAddress().Hex()),
		zap.String("to", to.Hex()),
	)

	return cc.signer.SendEIP712Transaction(ctx, to, data, nil, factoryDeps)
}
