package keyGenerator

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type GeneratedECDSAKey struct {
	PublicKey *ecdsa.PublicKey
	Address   common.Address
	KeyId     string
}

func (gek *GeneratedECDSAKey) GetPublicKeyHex() (string, error) {
	if gek.PublicKey == nil {
		return "", fmt.Errorf("public key is nil")
	}
	return hexutil.Encode(gek.PublicKey.Bytes()), nil
}

// IKeyGenerator creates and holds owner keys. Key material never leaves the
// implementation; callers only get the public half and digest signatures.
type IKeyGenerator interface {
	GenerateECDSAKey(ctx context.Context, keyName string, aliasName string) (*GeneratedECDSAKey, error)
	GetECDSAKeyById(ctx context.Context, keyId string) (*GeneratedECDSAKey, error)

	// SignDigest signs a 32-byte digest and returns r||s||v with v in {27, 28}
	SignDigest(ctx context.Context, keyId string, digest common.Hash) ([]byte, error)
}

// NormalizeRecoveryId moves a 0/1 recovery id into the 27/28 range expected
// by on-chain ecrecover.
func NormalizeRecoveryId(sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("invalid signature length: expected 65, got %d", len(sig))
	}
	out := common.CopyBytes(sig)
	if out[64] < 27 {
		out[64] += 27
	}
	if out[64] != 27 && out[64] != 28 {
		return nil, fmt.Errorf("invalid recovery id %d", out[64])
	}
	return out, nil
}
