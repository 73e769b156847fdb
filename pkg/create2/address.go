package create2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// create2Prefix is the discriminant the rollup's contract deployer mixes into
// every CREATE2 address.
var create2Prefix = crypto.Keccak256Hash([]byte("zksyncCreate2"))

// Descriptor is everything needed to predict where a factory will deploy an
// account.
type Descriptor struct {
	Factory  common.Address
	CodeHash common.Hash
	Salt     common.Hash
	// Input is the ABI-encoded constructor input the factory passes to the deployer
	Input []byte
}

// InputHash returns keccak256 of the constructor input
func (d *Descriptor) InputHash() common.Hash {
	return crypto.Keccak256Hash(d.Input)
}

// Address derives the deployment address for the descriptor
func (d *Descriptor) Address() common.Address {
	return DeriveAddress(d.Factory, d.CodeHash, d.Salt, d.InputHash())
}

// DeriveAddress returns
//
//	keccak256(keccak256("zksyncCreate2") ++ pad32(factory) ++ salt ++ codeHash ++ inputHash)[12:]
//
// which matches the contract deployer's on-chain derivation.
func DeriveAddress(factory common.Address, codeHash common.Hash, salt common.Hash, inputHash common.Hash) common.Address {
	digest := crypto.Keccak256(
		create2Prefix.Bytes(),
		common.LeftPadBytes(factory.Bytes(), 32),
		salt.Bytes(),
		codeHash.Bytes(),
		inputHash.Bytes(),
	)
	return common.BytesToAddress(digest[12:])
}

// DeriveAddressFromInput hashes the raw constructor input before deriving.
func DeriveAddressFromInput(factory common.Address, codeHash common.Hash, salt common.Hash, input []byte) common.Address {
	return DeriveAddress(factory, codeHash, salt, crypto.Keccak256Hash(input))
}
