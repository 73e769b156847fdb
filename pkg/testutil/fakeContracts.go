package testutil

import (
	"bytes"
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/cosigner"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// eip1271MagicValue is returned by isValidSignature for a valid payload
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

type fakeContract struct {
	kind     ContractKind
	codeHash common.Hash
	abi      *abi.ABI

	// factory
	aaBytecodeHash common.Hash

	// account and proxy
	owner1         common.Address
	owner2         common.Address
	greeting       string
	implementation common.Address
}

func (c *fakeContract) hasOwners() bool {
	return c.kind != ContractKindFactory && c.owner1 != (common.Address{}) && c.owner2 != (common.Address{})
}

// accountABI returns the ABI calls on c are dispatched with; proxies forward
// to their implementation.
func (f *FakeRollup) accountABI(c *fakeContract) (*abi.ABI, error) {
	if c.kind != ContractKindProxy {
		return c.abi, nil
	}
	impl, ok := f.contracts[c.implementation]
	if !ok {
		return nil, fmt.Errorf("proxy implementation %s not deployed", c.implementation.String())
	}
	return impl.abi, nil
}

// call runs p against its target and returns the emitted logs. State is
// only modified when no error is returned.
func (f *FakeRollup) call(p *pendingTx) ([]*types.Log, error) {
	if p.to == config.ContractDeployerAddress {
		return f.deployerCall(p)
	}

	c, ok := f.contracts[p.to]
	if !ok {
		return nil, nil
	}
	if len(p.data) == 0 {
		return nil, nil
	}

	switch c.kind {
	case ContractKindFactory:
		return f.factoryCall(p, c)
	default:
		return nil, f.accountCall(c, p.data)
	}
}

func (f *FakeRollup) deployerCall(p *pendingTx) ([]*types.Log, error) {
	if len(p.data) < 4 {
		return nil, fmt.Errorf("missing selector")
	}
	method, err := artifacts.ContractDeployerABI.MethodById(p.data[:4])
	if err != nil || method.Name != "create" {
		return nil, fmt.Errorf("unsupported contract deployer call")
	}
	args, err := method.Inputs.Unpack(p.data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode create arguments: %w", err)
	}
	codeHash := common.Hash(args[1].([32]byte))
	input := args[2].([]byte)

	if !f.published[codeHash] {
		return nil, fmt.Errorf("bytecode %s was not published", codeHash.Hex())
	}
	code, ok := f.codes[codeHash]
	if !ok {
		return nil, fmt.Errorf("unknown bytecode %s", codeHash.Hex())
	}

	c := &fakeContract{kind: code.kind, codeHash: codeHash, abi: code.artifact.ABI}
	switch code.kind {
	case ContractKindFactory:
		values, err := code.artifact.ABI.Constructor.Inputs.Unpack(input)
		if err != nil || len(values) != 1 {
			return nil, fmt.Errorf("failed to decode factory constructor input")
		}
		c.aaBytecodeHash = common.Hash(values[0].([32]byte))
	case ContractKindAccount:
		if len(code.artifact.ABI.Constructor.Inputs) == 2 {
			c.owner1, c.owner2, err = create2.DecodeDirectInput(input)
			if err != nil {
				return nil, err
			}
		}
	case ContractKindProxy:
		return nil, fmt.Errorf("proxies are only deployed through a factory")
	}

	addr := crypto.CreateAddress(p.from, p.nonce)
	if _, exists := f.contracts[addr]; exists {
		return nil, fmt.Errorf("contract already deployed at %s", addr.String())
	}
	f.contracts[addr] = c
	return []*types.Log{contractDeployedLog(p.from, codeHash, addr)}, nil
}

func (f *FakeRollup) factoryCall(p *pendingTx, factory *fakeContract) ([]*types.Log, error) {
	method, err := factory.abi.MethodById(p.data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown factory method: %w", err)
	}
	if method.Name != "deployAccount" {
		return nil, nil
	}
	args, err := method.Inputs.Unpack(p.data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode deployAccount arguments: %w", err)
	}
	salt := common.Hash(args[0].([32]byte))

	code, ok := f.codes[factory.aaBytecodeHash]
	if !ok || !f.published[factory.aaBytecodeHash] {
		return nil, fmt.Errorf("account bytecode %s was not published", factory.aaBytecodeHash.Hex())
	}

	account := &fakeContract{kind: code.kind, codeHash: factory.aaBytecodeHash, abi: code.artifact.ABI}
	var input []byte
	switch len(args) {
	case 3:
		account.owner1 = args[1].(common.Address)
		account.owner2 = args[2].(common.Address)
		input, err = create2.EncodeDirectInput(account.owner1, account.owner2)
	case 4:
		account.implementation = args[1].(common.Address)
		account.owner1 = args[2].(common.Address)
		account.owner2 = args[3].(common.Address)
		impl, ok := f.contracts[account.implementation]
		if !ok {
			return nil, fmt.Errorf("implementation %s not deployed", account.implementation.String())
		}
		var initData []byte
		initData, err = create2.EncodeInitialize(impl.abi, account.owner1, account.owner2)
		if err == nil {
			input, err = create2.EncodeProxyInput(account.implementation, initData)
		}
	default:
		return nil, fmt.Errorf("unexpected deployAccount arity %d", len(args))
	}
	if err != nil {
		return nil, err
	}

	addr := create2.DeriveAddressFromInput(p.to, factory.aaBytecodeHash, salt, input)
	if f.misderive {
		addr = crypto.CreateAddress(p.to, p.nonce)
	}
	if _, exists := f.contracts[addr]; exists {
		return nil, fmt.Errorf("account already deployed at %s", addr.String())
	}
	f.contracts[addr] = account
	return []*types.Log{contractDeployedLog(p.to, factory.aaBytecodeHash, addr)}, nil
}

func (f *FakeRollup) accountCall(c *fakeContract, data []byte) error {
	contractABI, err := f.accountABI(c)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("missing selector")
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return fmt.Errorf("unknown account method: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("failed to decode %s arguments: %w", method.Name, err)
	}

	switch method.Name {
	case "setGreeting":
		c.greeting = args[0].(string)
		return nil
	case "greeting", "owner1", "owner2", "isValidSignature":
		return nil
	default:
		return fmt.Errorf("method %s is not supported", method.Name)
	}
}

func (f *FakeRollup) view(c *fakeContract, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("execution reverted: missing selector")
	}

	contractABI := c.abi
	if c.kind != ContractKindFactory {
		var err error
		if contractABI, err = f.accountABI(c); err != nil {
			return nil, err
		}
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted: %w", err)
	}

	switch method.Name {
	case "aaBytecodeHash":
		return method.Outputs.Pack([32]byte(c.aaBytecodeHash))
	case "greeting":
		return method.Outputs.Pack(c.greeting)
	case "owner1":
		return method.Outputs.Pack(c.owner1)
	case "owner2":
		return method.Outputs.Pack(c.owner2)
	case "isValidSignature":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("execution reverted: %w", err)
		}
		digest := common.Hash(args[0].([32]byte))
		verifier := cosigner.ReferenceVerifier{Owner1: c.owner1, Owner2: c.owner2}
		var magic [4]byte
		if verifier.IsValidSignature(digest, args[1].([]byte)) {
			magic = eip1271MagicValue
		}
		return method.Outputs.Pack(magic)
	default:
		return nil, fmt.Errorf("execution reverted: %s is not a view", method.Name)
	}
}

func contractDeployedLog(deployer common.Address, codeHash common.Hash, addr common.Address) *types.Log {
	return &types.Log{
		Address: config.ContractDeployerAddress,
		Topics: []common.Hash{
			artifacts.ContractDeployedEvent.ID,
			common.BytesToHash(deployer.Bytes()),
			codeHash,
			common.BytesToHash(addr.Bytes()),
		},
	}
}

// IsMagicValue reports whether ret is the isValidSignature success value
func IsMagicValue(ret []byte) bool {
	return len(ret) >= 4 && bytes.Equal(ret[:4], eip1271MagicValue[:])
}
