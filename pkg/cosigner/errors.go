package cosigner

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	// ErrAddressDerivationMismatch means the factory deployed the account at a
	// different address than the one derived offline. Nothing may be signed
	// for or funded at either address.
	ErrAddressDerivationMismatch = errors.New("derived account address does not match deployed address")

	// ErrSigningFailed is matched by every *SigningError
	ErrSigningFailed = errors.New("signing failed")

	// ErrStaleSignature means the call changed after it was signed
	ErrStaleSignature = errors.New("transaction changed after signing")
)

type AddressMismatchError struct {
	Derived  common.Address
	Deployed common.Address
}

func (e *AddressMismatchError) Error() string {
	return fmt.Sprintf("%s: derived %s, deployed %s", ErrAddressDerivationMismatch.Error(), e.Derived.String(), e.Deployed.String())
}

func (e *AddressMismatchError) Is(target error) bool {
	return target == ErrAddressDerivationMismatch
}

// SigningError identifies which owner failed to produce a usable signature.
type SigningError struct {
	Role   Role
	Signer common.Address
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s signer %s: %v", e.Role.String(), e.Signer.String(), e.Err)
}

func (e *SigningError) Is(target error) bool {
	return target == ErrSigningFailed
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
