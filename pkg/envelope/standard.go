package envelope

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// StandardEnvelope carries a plain EIP-1559 transaction, used for value
// transfers that need no account abstraction features.
type StandardEnvelope struct {
	Tx *types.Transaction
}

var _ Envelope = (*StandardEnvelope)(nil)

// NewTransfer builds an unsigned dynamic-fee value transfer.
func NewTransfer(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) *StandardEnvelope {
	return &StandardEnvelope{
		Tx: types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).Set(chainID),
			Nonce:     nonce,
			GasTipCap: new(big.Int).Set(gasPrice),
			GasFeeCap: new(big.Int).Set(gasPrice),
			Gas:       gasLimit,
			To:        &to,
			Value:     new(big.Int).Set(value),
		}),
	}
}

func (e *StandardEnvelope) Type() TxType {
	return TxType(e.Tx.Type())
}

func (e *StandardEnvelope) signer() types.Signer {
	return types.LatestSignerForChainID(e.Tx.ChainId())
}

func (e *StandardEnvelope) SigningHash() (common.Hash, error) {
	return e.signer().Hash(e.Tx), nil
}

// WithSignature returns a copy of the envelope carrying a 65-byte r||s||v
// signature. v may be 0/1 or 27/28.
func (e *StandardEnvelope) WithSignature(sig []byte) (*StandardEnvelope, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65, got %d", len(sig))
	}
	normalized := common.CopyBytes(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	signed, err := e.Tx.WithSignature(e.signer(), normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}
	return &StandardEnvelope{Tx: signed}, nil
}

func (e *StandardEnvelope) MarshalBinary() ([]byte, error) {
	return e.Tx.MarshalBinary()
}
