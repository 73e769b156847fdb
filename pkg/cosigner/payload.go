package cosigner

import (
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
)

// Role is a signer's fixed position in the authorization payload
type Role int

const (
	RoleOwner1 Role = iota
	RoleOwner2

	numOwners = 2
)

func (r Role) String() string {
	switch r {
	case RoleOwner1:
		return "owner1"
	case RoleOwner2:
		return "owner2"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

const PayloadLength = numOwners * signer.SignatureLength

// AuthorizationPayload is sig(owner1) || sig(owner2). The account contract
// splits it at byte 65 and checks each half against its owner in order.
type AuthorizationPayload []byte

func NewAuthorizationPayload(owner1Sig, owner2Sig []byte) (AuthorizationPayload, error) {
	if len(owner1Sig) != signer.SignatureLength {
		return nil, fmt.Errorf("invalid %s signature length: %d", RoleOwner1.String(), len(owner1Sig))
	}
	if len(owner2Sig) != signer.SignatureLength {
		return nil, fmt.Errorf("invalid %s signature length: %d", RoleOwner2.String(), len(owner2Sig))
	}

	payload := make(AuthorizationPayload, 0, PayloadLength)
	payload = append(payload, owner1Sig...)
	payload = append(payload, owner2Sig...)
	return payload, nil
}

// Signature returns the half of the payload belonging to role.
func (p AuthorizationPayload) Signature(role Role) ([]byte, error) {
	if len(p) != PayloadLength {
		return nil, fmt.Errorf("invalid payload length: expected %d, got %d", PayloadLength, len(p))
	}
	if role != RoleOwner1 && role != RoleOwner2 {
		return nil, fmt.Errorf("unknown role %s", role.String())
	}
	start := int(role) * signer.SignatureLength
	return p[start : start+signer.SignatureLength], nil
}
