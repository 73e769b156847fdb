package flow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/zksync-multisig-go/internal/aws"
	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator/awsKms"
	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/transactionSigner"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const kmsKeyEnvironment = "multisig"

// NewSignerFromConfig builds the signer backend selected by cfg.Kind. name
// labels the key in logs and in the in-memory key store.
func NewSignerFromConfig(ctx context.Context, name string, cfg *config.SignerConfig, logger *zap.Logger) (signer.ISigner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%s signer config is required", name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s signer config", name)
	}

	switch cfg.Kind {
	case config.SignerKindPrivateKey:
		generator := localKeyGenerator.NewLocalKeyGenerator(logger)
		keyId, err := generator.LoadPrivateKeyFromHex(cfg.PrivateKey, name, "")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s private key", name)
		}
		return signer.NewKeySigner(ctx, generator, keyId, logger)

	case config.SignerKindWeb3Signer:
		return signer.NewWeb3SignerFromConfig(ctx, cfg.RemoteSigner, logger)

	case config.SignerKindAWSKMS:
		awsCfg, err := aws.LoadAWSConfig(ctx, cfg.AWSKMS.Region)
		if err != nil {
			return nil, err
		}
		if arn, err := aws.CallerArn(ctx, awsCfg); err == nil {
			logger.Sugar().Infow("Using AWS KMS signer", "signer", name, "keyId", cfg.AWSKMS.KeyId, "caller", arn)
		} else {
			logger.Sugar().Warnw("Could not resolve AWS caller identity", "signer", name, "error", err)
		}
		generator := awsKms.NewAWSKMSKeyGenerator(awsCfg, kmsKeyEnvironment, logger)
		return signer.NewKeySigner(ctx, generator, cfg.AWSKMS.KeyId, logger)

	default:
		return nil, fmt.Errorf("unsupported signer kind: %q", cfg.Kind)
	}
}

// NewOwnerSigners returns the two account owners in role order. With no
// configs, two fresh keys are generated in memory and only their addresses
// are logged.
func NewOwnerSigners(ctx context.Context, cfgs []*config.SignerConfig, logger *zap.Logger) ([]signer.ISigner, error) {
	if len(cfgs) == 0 {
		generator := localKeyGenerator.NewLocalKeyGenerator(logger)
		owners := make([]signer.ISigner, 0, 2)
		for i := 1; i <= 2; i++ {
			name := fmt.Sprintf("owner%d", i)
			key, err := generator.GenerateECDSAKey(ctx, name, "")
			if err != nil {
				return nil, errors.Wrapf(err, "failed to generate %s key", name)
			}
			s, err := signer.NewKeySigner(ctx, generator, key.KeyId, logger)
			if err != nil {
				return nil, err
			}
			logger.Sugar().Infow("Generated owner key", "owner", name, "address", s.Address().String())
			owners = append(owners, s)
		}
		return owners, nil
	}

	if len(cfgs) != 2 {
		return nil, fmt.Errorf("exactly 2 owner signers are required, got %d", len(cfgs))
	}
	owners := make([]signer.ISigner, 0, 2)
	for i, cfg := range cfgs {
		s, err := NewSignerFromConfig(ctx, fmt.Sprintf("owner%d", i+1), cfg, logger)
		if err != nil {
			return nil, err
		}
		owners = append(owners, s)
	}
	return owners, nil
}

// NewDeployer returns the transaction signer that pays for deployments and
// funds the account.
func NewDeployer(
	ctx context.Context,
	cfg *config.SignerConfig,
	chainProvider provider.IChainProvider,
	submitter *provider.Submitter,
	gasPerPubdata *big.Int,
	logger *zap.Logger,
) (*transactionSigner.TransactionSigner, error) {
	s, err := NewSignerFromConfig(ctx, "deployer", cfg, logger)
	if err != nil {
		return nil, err
	}
	return transactionSigner.NewTransactionSigner(s, chainProvider, submitter, gasPerPubdata, logger), nil
}
