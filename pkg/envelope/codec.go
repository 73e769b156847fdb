package envelope

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// eip712Wire is the rlp field order of a 0x71 transaction. Positions 7-9 hold
// (chainId, "", "") since the authorization travels in CustomSignature.
type eip712Wire struct {
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	GasLimit             uint64
	To                   common.Address
	Value                *big.Int
	Data                 []byte
	V                    *big.Int
	R                    []byte
	S                    []byte
	ChainID              *big.Int
	From                 common.Address
	GasPerPubdata        *big.Int
	FactoryDeps          [][]byte
	CustomSignature      []byte
	PaymasterParams      [][]byte
}

// MarshalBinary encodes the transaction as 0x71 || rlp(fields).
func (tx *EIP712Tx) MarshalBinary() ([]byte, error) {
	if tx.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if tx.Meta.GasPerPubdata == nil {
		return nil, fmt.Errorf("gas per pubdata is required")
	}

	wire := eip712Wire{
		Nonce:                tx.Nonce,
		MaxPriorityFeePerGas: bigOrZero(tx.MaxPriorityFeePerGas),
		MaxFeePerGas:         bigOrZero(tx.MaxFeePerGas),
		GasLimit:             tx.GasLimit,
		To:                   tx.To,
		Value:                bigOrZero(tx.Value),
		Data:                 tx.Data,
		V:                    new(big.Int).Set(tx.ChainID),
		R:                    []byte{},
		S:                    []byte{},
		ChainID:              new(big.Int).Set(tx.ChainID),
		From:                 tx.From,
		GasPerPubdata:        new(big.Int).Set(tx.Meta.GasPerPubdata),
		FactoryDeps:          tx.Meta.FactoryDeps,
		CustomSignature:      tx.Meta.CustomSignature,
		PaymasterParams:      [][]byte{},
	}
	if wire.FactoryDeps == nil {
		wire.FactoryDeps = [][]byte{}
	}
	if pm := tx.Meta.PaymasterParams; pm != nil {
		wire.PaymasterParams = [][]byte{pm.Paymaster.Bytes(), pm.PaymasterInput}
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(EIP712TxType))
	if err := rlp.Encode(&buf, &wire); err != nil {
		return nil, fmt.Errorf("failed to rlp encode transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEIP712Tx parses a 0x71 wire encoding produced by MarshalBinary.
func DecodeEIP712Tx(raw []byte) (*EIP712Tx, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}
	if TxType(raw[0]) != EIP712TxType {
		return nil, fmt.Errorf("unexpected transaction type 0x%x", raw[0])
	}

	var wire eip712Wire
	if err := rlp.DecodeBytes(raw[1:], &wire); err != nil {
		return nil, fmt.Errorf("failed to rlp decode transaction: %w", err)
	}

	tx := &EIP712Tx{
		ChainID:              wire.ChainID,
		Nonce:                wire.Nonce,
		From:                 wire.From,
		To:                   wire.To,
		GasLimit:             wire.GasLimit,
		MaxFeePerGas:         wire.MaxFeePerGas,
		MaxPriorityFeePerGas: wire.MaxPriorityFeePerGas,
		Value:                wire.Value,
		Data:                 wire.Data,
		Meta: EIP712Meta{
			GasPerPubdata:   wire.GasPerPubdata,
			CustomSignature: wire.CustomSignature,
		},
	}
	if len(wire.FactoryDeps) > 0 {
		tx.Meta.FactoryDeps = wire.FactoryDeps
	}
	switch len(wire.PaymasterParams) {
	case 0:
	case 2:
		if len(wire.PaymasterParams[0]) != common.AddressLength {
			return nil, fmt.Errorf("invalid paymaster address length %d", len(wire.PaymasterParams[0]))
		}
		tx.Meta.PaymasterParams = &PaymasterParams{
			Paymaster:      common.BytesToAddress(wire.PaymasterParams[0]),
			PaymasterInput: wire.PaymasterParams[1],
		}
	default:
		return nil, fmt.Errorf("invalid paymaster params: expected 0 or 2 fields, got %d", len(wire.PaymasterParams))
	}
	return tx, nil
}
