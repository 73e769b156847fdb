package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const SignatureLength = 65

// ISigner produces an owner signature over an EIP-712 digest. Implementations
// that can only sign raw digests ignore typedData; remote signers that hash
// for themselves use it and the caller checks the result against digest.
type ISigner interface {
	// Address of the owner this signer acts for
	Address() common.Address

	// SignTypedData returns r||s||v with v in {27, 28}
	SignTypedData(ctx context.Context, typedData *apitypes.TypedData, digest common.Hash) ([]byte, error)
}

// ITransferSigner is implemented by signers that can also sign a standard
// EIP-1559 transaction sent from their address.
type ITransferSigner interface {
	ISigner
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// RecoverAddress returns the address that produced sig over digest. sig may
// carry v as 0/1 or 27/28.
func RecoverAddress(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d, got %d", SignatureLength, len(sig))
	}
	recoverable := common.CopyBytes(sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), recoverable)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether sig over digest was produced by expected.
func VerifySignature(digest common.Hash, sig []byte, expected common.Address) (bool, error) {
	addr, err := RecoverAddress(digest, sig)
	if err != nil {
		return false, err
	}
	return addr == expected, nil
}
