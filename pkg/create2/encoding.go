package create2

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	addressType, _ = abi.NewType("address", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	directInputArgs = abi.Arguments{{Type: addressType}, {Type: addressType}}
	proxyInputArgs  = abi.Arguments{{Type: addressType}, {Type: bytesType}}
)

// EncodeDirectInput is the constructor input of an account deployed from its
// own bytecode: abi.encode(owner1, owner2).
func EncodeDirectInput(owner1, owner2 common.Address) ([]byte, error) {
	input, err := directInputArgs.Pack(owner1, owner2)
	if err != nil {
		return nil, fmt.Errorf("failed to encode owners: %w", err)
	}
	return input, nil
}

// EncodeProxyInput is the constructor input of a proxy account:
// abi.encode(implementation, initData).
func EncodeProxyInput(implementation common.Address, initData []byte) ([]byte, error) {
	input, err := proxyInputArgs.Pack(implementation, initData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy input: %w", err)
	}
	return input, nil
}

// EncodeInitialize packs the initialize(owner1, owner2) call the proxy
// forwards to its implementation on construction.
func EncodeInitialize(accountABI *abi.ABI, owner1, owner2 common.Address) ([]byte, error) {
	if accountABI == nil {
		return nil, fmt.Errorf("account ABI cannot be nil")
	}
	data, err := accountABI.Pack("initialize", owner1, owner2)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initialize call: %w", err)
	}
	return data, nil
}

// DecodeDirectInput reverses EncodeDirectInput.
func DecodeDirectInput(input []byte) (common.Address, common.Address, error) {
	values, err := directInputArgs.Unpack(input)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("failed to decode owners: %w", err)
	}
	if len(values) != 2 {
		return common.Address{}, common.Address{}, fmt.Errorf("expected 2 values, got %d", len(values))
	}
	owner1, ok1 := values[0].(common.Address)
	owner2, ok2 := values[1].(common.Address)
	if !ok1 || !ok2 {
		return common.Address{}, common.Address{}, fmt.Errorf("unexpected types in decoded owners")
	}
	return owner1, owner2, nil
}
