package testutil

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/internal/tests"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// FastSubmitterConfig polls receipts quickly and gives up after a second
var FastSubmitterConfig = &provider.SubmitterConfig{
	Timeout:      time.Second,
	PollInterval: time.Millisecond,
}

// OneEther is 10^18 wei
var OneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FixtureLoader loads the compiled contract fixtures shipped with pkg/artifacts
func FixtureLoader() (*artifacts.FileLoader, error) {
	return artifacts.NewFileLoader(tests.ArtifactsPath(tests.GetProjectRootPath()))
}

// NewFixtureRollup returns a fake rollup that knows every fixture contract
func NewFixtureRollup(logger *zap.Logger) (*FakeRollup, *artifacts.FileLoader, error) {
	loader, err := FixtureLoader()
	if err != nil {
		return nil, nil, err
	}
	rollup, err := NewFakeRollupWithFixtures(loader, logger)
	if err != nil {
		return nil, nil, err
	}
	return rollup, loader, nil
}

// NewPrivateKeyHex returns a fresh secp256k1 key as 0x-prefixed hex
func NewPrivateKeyHex() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(crypto.FromECDSA(key)), nil
}

// NewOwnerSigners generates two in-memory owner keys
func NewOwnerSigners(ctx context.Context, logger *zap.Logger) ([]signer.ISigner, error) {
	generator := localKeyGenerator.NewLocalKeyGenerator(logger)
	signers := make([]signer.ISigner, 0, 2)
	for i := 1; i <= 2; i++ {
		key, err := generator.GenerateECDSAKey(ctx, fmt.Sprintf("owner-%d", i), "")
		if err != nil {
			return nil, err
		}
		s, err := signer.NewKeySigner(ctx, generator, key.KeyId, logger)
		if err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	return signers, nil
}
