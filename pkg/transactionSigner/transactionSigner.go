package transactionSigner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ITransactionSigner signs and submits transactions sent by a plain
// externally owned account, such as the deployer.
type ITransactionSigner interface {
	// GetFromAddress returns the address that will be used for signing
	GetFromAddress() common.Address

	// SendEIP712Transaction builds, signs and submits a 0x71 call. factoryDeps
	// carries the bytecodes a deployment needs published.
	SendEIP712Transaction(ctx context.Context, to common.Address, data []byte, value *big.Int, factoryDeps [][]byte) (*types.Receipt, error)

	// SendTransfer moves value to `to` with an EIP-1559 transaction
	SendTransfer(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error)
}

type TransactionSigner struct {
	signer        signer.ISigner
	builder       *provider.CallBuilder
	submitter     *provider.Submitter
	gasPerPubdata *big.Int
	logger        *zap.Logger
}

var _ ITransactionSigner = (*TransactionSigner)(nil)

func NewTransactionSigner(
	s signer.ISigner,
	chainProvider provider.IChainProvider,
	submitter *provider.Submitter,
	gasPerPubdata *big.Int,
	logger *zap.Logger,
) *TransactionSigner {
	return &TransactionSigner{
		signer:        s,
		builder:       provider.NewCallBuilder(chainProvider, logger),
		submitter:     submitter,
		gasPerPubdata: new(big.Int).Set(gasPerPubdata),
		logger:        logger,
	}
}

// NewPrivateKeySigner loads a hex private key into an in-memory key store
// and signs with it.
func NewPrivateKeySigner(
	ctx context.Context,
	privateKey string,
	chainProvider provider.IChainProvider,
	submitter *provider.Submitter,
	gasPerPubdata *big.Int,
	logger *zap.Logger,
) (*TransactionSigner, error) {
	if privateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	generator := localKeyGenerator.NewLocalKeyGenerator(logger)
	keyId, err := generator.LoadPrivateKeyFromHex(privateKey, "deployer", "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to load deployer private key")
	}

	keySigner, err := signer.NewKeySigner(ctx, generator, keyId, logger)
	if err != nil {
		return nil, err
	}
	return NewTransactionSigner(keySigner, chainProvider, submitter, gasPerPubdata, logger), nil
}

func (ts *TransactionSigner) GetFromAddress() common.Address {
	return ts.signer.Address()
}

func (ts *TransactionSigner) SendEIP712Transaction(ctx context.Context, to common.Address, data []byte, value *big.Int, factoryDeps [][]byte) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := ts.signer.Address()

	tx, err := ts.builder.BuildUnsignedCallWithValue(ctx, from, to, data, value, envelope.EIP712Meta{
		GasPerPubdata: new(big.Int).Set(ts.gasPerPubdata),
		FactoryDeps:   factoryDeps,
	})
	if err != nil {
		return nil, err
	}

	typedData, err := tx.TypedData()
	if err != nil {
		return nil, err
	}
	digest, err := envelope.HashTypedData(typedData)
	if err != nil {
		return nil, err
	}

	sig, err := ts.signer.SignTypedData(ctx, typedData, digest)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign transaction from %s", from.String())
	}
	ok, err := signer.VerifySignature(digest, sig, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify transaction signature")
	}
	if !ok {
		return nil, fmt.Errorf("signature does not recover to %s", from.String())
	}
	tx.Meta.CustomSignature = sig

	ts.logger.Sugar().Infow("Sending EIP-712 transaction",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("nonce", tx.Nonce),
		zap.Int("factoryDeps", len(factoryDeps)),
	)
	return ts.submitter.SubmitEnvelope(ctx, tx)
}

func (ts *TransactionSigner) SendTransfer(ctx context.Context, to common.Address, value *big.Int) (*types.Receipt, error) {
	transferSigner, ok := ts.signer.(signer.ITransferSigner)
	if !ok {
		return nil, fmt.Errorf("signer for %s cannot sign standard transactions", ts.signer.Address().String())
	}
	from := ts.signer.Address()

	env, err := ts.builder.BuildTransfer(ctx, from, to, value)
	if err != nil {
		return nil, err
	}

	signedTx, err := transferSigner.SignTransaction(ctx, env.Tx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to sign transfer from %s", from.String())
	}

	ts.logger.Sugar().Infow("Sending transfer",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("value", value.String()),
	)
	return ts.submitter.SubmitEnvelope(ctx, &envelope.StandardEnvelope{Tx: signedTx})
}
