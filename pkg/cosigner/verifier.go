package cosigner

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// ReferenceVerifier performs the same checks as the two-owner account's
// isValidSignature, so a payload can be validated before it costs gas.
type ReferenceVerifier struct {
	Owner1 common.Address
	Owner2 common.Address
}

// Verify returns nil when payload is a valid authorization of digest by
// Owner1 and Owner2, in that order.
func (v ReferenceVerifier) Verify(digest common.Hash, payload []byte) error {
	if len(payload) != PayloadLength {
		return fmt.Errorf("invalid payload length: expected %d, got %d", PayloadLength, len(payload))
	}

	owners := [numOwners]common.Address{v.Owner1, v.Owner2}
	for i, owner := range owners {
		role := Role(i)
		sig, err := AuthorizationPayload(payload).Signature(role)
		if err != nil {
			return err
		}
		if err := checkSignatureFormat(sig); err != nil {
			return fmt.Errorf("%s signature: %w", role.String(), err)
		}

		recovered, err := signer.RecoverAddress(digest, sig)
		if err != nil {
			return fmt.Errorf("%s signature: %w", role.String(), err)
		}
		if recovered != owner {
			return fmt.Errorf("%s signature recovers to %s, expected %s", role.String(), recovered.String(), owner.String())
		}
	}
	return nil
}

// IsValidSignature is Verify reduced to a bool.
func (v ReferenceVerifier) IsValidSignature(digest common.Hash, payload []byte) bool {
	return v.Verify(digest, payload) == nil
}

// checkSignatureFormat rejects malleable (high-s) signatures and recovery ids
// outside 27/28, as on-chain ecrecover wrappers do.
func checkSignatureFormat(sig []byte) error {
	if sig[64] != 27 && sig[64] != 28 {
		return fmt.Errorf("invalid v value %d", sig[64])
	}
	if new(big.Int).SetBytes(sig[32:64]).Cmp(secp256k1HalfN) > 0 {
		return fmt.Errorf("s value is not in the lower half order")
	}
	return nil
}
