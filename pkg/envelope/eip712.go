package envelope

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DomainName    = "zkSync"
	DomainVersion = "2"

	transactionTypeName = "Transaction"
)

var transactionTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	transactionTypeName: {
		{Name: "txType", Type: "uint256"},
		{Name: "from", Type: "uint256"},
		{Name: "to", Type: "uint256"},
		{Name: "gasLimit", Type: "uint256"},
		{Name: "gasPerPubdataByteLimit", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymaster", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "factoryDeps", Type: "bytes32[]"},
		{Name: "paymasterInput", Type: "bytes"},
	},
}

// PaymasterParams names the contract paying the fee and the input it validates
type PaymasterParams struct {
	Paymaster      common.Address
	PaymasterInput []byte
}

// EIP712Meta is the extended metadata carried by 0x71 transactions on top of
// the base call fields.
type EIP712Meta struct {
	// GasPerPubdata is the fee unit charged per published byte
	GasPerPubdata *big.Int

	// FactoryDeps are bytecodes the deployer must know before executing the call
	FactoryDeps [][]byte

	// CustomSignature is the authorization the sender's account validates.
	// It is not part of the signing hash.
	CustomSignature []byte

	// PaymasterParams is nil when the sender pays its own fee
	PaymasterParams *PaymasterParams
}

// EIP712Tx is a 0x71 transaction. Until CustomSignature is attached it is the
// unsigned call signers are asked to authorize.
type EIP712Tx struct {
	ChainID              *big.Int
	Nonce                uint64
	From                 common.Address
	To                   common.Address
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Data                 []byte

	Meta EIP712Meta
}

var _ Envelope = (*EIP712Tx)(nil)

func (tx *EIP712Tx) Type() TxType {
	return EIP712TxType
}

// Copy returns a deep copy of the transaction.
func (tx *EIP712Tx) Copy() *EIP712Tx {
	cpy := &EIP712Tx{
		ChainID:              copyBig(tx.ChainID),
		Nonce:                tx.Nonce,
		From:                 tx.From,
		To:                   tx.To,
		GasLimit:             tx.GasLimit,
		MaxFeePerGas:         copyBig(tx.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(tx.MaxPriorityFeePerGas),
		Value:                copyBig(tx.Value),
		Data:                 common.CopyBytes(tx.Data),
		Meta: EIP712Meta{
			GasPerPubdata:   copyBig(tx.Meta.GasPerPubdata),
			CustomSignature: common.CopyBytes(tx.Meta.CustomSignature),
		},
	}
	if tx.Meta.FactoryDeps != nil {
		cpy.Meta.FactoryDeps = make([][]byte, len(tx.Meta.FactoryDeps))
		for i, dep := range tx.Meta.FactoryDeps {
			cpy.Meta.FactoryDeps[i] = common.CopyBytes(dep)
		}
	}
	if tx.Meta.PaymasterParams != nil {
		cpy.Meta.PaymasterParams = &PaymasterParams{
			Paymaster:      tx.Meta.PaymasterParams.Paymaster,
			PaymasterInput: common.CopyBytes(tx.Meta.PaymasterParams.PaymasterInput),
		}
	}
	return cpy
}

// FactoryDepHashes returns the bytecode hash of every factory dependency.
func (tx *EIP712Tx) FactoryDepHashes() ([]common.Hash, error) {
	hashes := make([]common.Hash, 0, len(tx.Meta.FactoryDeps))
	for i, dep := range tx.Meta.FactoryDeps {
		h, err := create2.HashBytecode(dep)
		if err != nil {
			return nil, fmt.Errorf("invalid factory dependency %d: %w", i, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// TypedData returns the EIP-712 typed data whose hash signers authorize. The
// domain binds the chain; the from field binds the verifying account.
func (tx *EIP712Tx) TypedData() (*apitypes.TypedData, error) {
	if tx.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}

	depHashes, err := tx.FactoryDepHashes()
	if err != nil {
		return nil, err
	}
	deps := make([]interface{}, len(depHashes))
	for i, h := range depHashes {
		deps[i] = h.Hex()
	}

	paymaster := common.Address{}
	paymasterInput := hexutil.Bytes{}
	if tx.Meta.PaymasterParams != nil {
		paymaster = tx.Meta.PaymasterParams.Paymaster
		paymasterInput = append(paymasterInput, tx.Meta.PaymasterParams.PaymasterInput...)
	}

	return &apitypes.TypedData{
		Types:       transactionTypes,
		PrimaryType: transactionTypeName,
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(tx.ChainID)),
		},
		Message: apitypes.TypedDataMessage{
			"txType":                 u256(big.NewInt(int64(EIP712TxType))),
			"from":                   addressToU256(tx.From),
			"to":                     addressToU256(tx.To),
			"gasLimit":               u256(new(big.Int).SetUint64(tx.GasLimit)),
			"gasPerPubdataByteLimit": u256(tx.Meta.GasPerPubdata),
			"maxFeePerGas":           u256(tx.MaxFeePerGas),
			"maxPriorityFeePerGas":   u256(tx.MaxPriorityFeePerGas),
			"paymaster":              addressToU256(paymaster),
			"nonce":                  u256(new(big.Int).SetUint64(tx.Nonce)),
			"value":                  u256(tx.Value),
			"data":                   append(hexutil.Bytes{}, tx.Data...),
			"factoryDeps":            deps,
			"paymasterInput":         paymasterInput,
		},
	}, nil
}

// SigningHash returns the canonical EIP-712 digest of the transaction.
func (tx *EIP712Tx) SigningHash() (common.Hash, error) {
	typedData, err := tx.TypedData()
	if err != nil {
		return common.Hash{}, err
	}
	return HashTypedData(typedData)
}

// HashTypedData returns keccak256(0x19 0x01 ++ domainSeparator ++ hashStruct(message)).
func HashTypedData(typedData *apitypes.TypedData) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(*typedData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// u256 and hexutil.Bytes keep the message encodable both in process and as
// JSON for remote signers.
func u256(v *big.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(bigOrZero(v))
}

func addressToU256(addr common.Address) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetBytes(addr.Bytes()))
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
