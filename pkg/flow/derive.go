package flow

import (
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// AccountParams are the inputs that determine where a factory deploys an account
type AccountParams struct {
	Kind         config.AccountKind
	Factory      common.Address
	BytecodeHash common.Hash
	Salt         common.Hash
	Owner1       common.Address
	Owner2       common.Address

	// Implementation and AccountABI are required for proxied accounts only
	Implementation common.Address
	AccountABI     *abi.ABI
}

// Descriptor returns the deployment descriptor the factory will use
func (p *AccountParams) Descriptor() (*create2.Descriptor, error) {
	var (
		input []byte
		err   error
	)
	switch p.Kind {
	case config.AccountKindDirect:
		input, err = create2.EncodeDirectInput(p.Owner1, p.Owner2)
	case config.AccountKindProxied:
		if p.AccountABI == nil {
			return nil, fmt.Errorf("account ABI is required for proxied accounts")
		}
		if p.Implementation == (common.Address{}) {
			return nil, fmt.Errorf("implementation address is required for proxied accounts")
		}
		var initData []byte
		initData, err = create2.EncodeInitialize(p.AccountABI, p.Owner1, p.Owner2)
		if err == nil {
			input, err = create2.EncodeProxyInput(p.Implementation, initData)
		}
	default:
		return nil, fmt.Errorf("unsupported account kind %q", p.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode account constructor input: %w", err)
	}

	return &create2.Descriptor{
		Factory:  p.Factory,
		CodeHash: p.BytecodeHash,
		Salt:     p.Salt,
		Input:    input,
	}, nil
}

// DeriveAccountAddress computes the account address offline
func DeriveAccountAddress(p *AccountParams) (common.Address, error) {
	desc, err := p.Descriptor()
	if err != nil {
		return common.Address{}, err
	}
	return desc.Address(), nil
}
