package envelope

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxType is the typed-transaction discriminant that prefixes the wire encoding.
type TxType uint8

const (
	DynamicFeeTxType TxType = types.DynamicFeeTxType
	EIP712TxType     TxType = 0x71
)

func (t TxType) String() string {
	switch t {
	case DynamicFeeTxType:
		return "dynamic-fee"
	case EIP712TxType:
		return "eip712"
	default:
		return "unknown"
	}
}

// Envelope is a wire-ready transaction of some kind. Each variant owns its own
// signing hash and encoding; submission only needs the bytes.
type Envelope interface {
	Type() TxType

	// SigningHash is the digest authorizing parties sign
	SigningHash() (common.Hash, error)

	// MarshalBinary returns the typed wire encoding
	MarshalBinary() ([]byte, error)
}
