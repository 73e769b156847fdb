package signer

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// KeySigner signs with a key held by a key generator (in-memory or AWS KMS).
type KeySigner struct {
	generator keyGenerator.IKeyGenerator
	keyId     string
	address   common.Address
	logger    *zap.Logger
}

var _ ITransferSigner = (*KeySigner)(nil)

func NewKeySigner(ctx context.Context, generator keyGenerator.IKeyGenerator, keyId string, logger *zap.Logger) (*KeySigner, error) {
	key, err := generator.GetECDSAKeyById(ctx, keyId)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", keyId, err)
	}

	return &KeySigner{
		generator: generator,
		keyId:     keyId,
		address:   key.Address,
		logger:    logger,
	}, nil
}

func (ks *KeySigner) Address() common.Address {
	return ks.address
}

func (ks *KeySigner) SignTypedData(ctx context.Context, _ *apitypes.TypedData, digest common.Hash) ([]byte, error) {
	sig, err := ks.generator.SignDigest(ctx, ks.keyId, digest)
	if err != nil {
		return nil, err
	}

	ks.logger.Sugar().Debugw("Signed digest",
		"address", ks.address.String(),
		"digest", digest.Hex(),
	)
	return sig, nil
}

func (ks *KeySigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	env := &envelope.StandardEnvelope{Tx: tx}
	hash, err := env.SigningHash()
	if err != nil {
		return nil, err
	}

	sig, err := ks.generator.SignDigest(ctx, ks.keyId, hash)
	if err != nil {
		return nil, err
	}

	signed, err := env.WithSignature(sig)
	if err != nil {
		return nil, err
	}
	return signed.Tx, nil
}
