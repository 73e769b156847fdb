package flow

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/contractCaller"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/cosigner"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence/memory"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Result describes a completed run
type Result struct {
	RunID          string
	Factory        common.Address
	Implementation common.Address
	Account        common.Address
	BytecodeHash   common.Hash
	GreetingBefore string
	GreetingAfter  string

	// GreetingReceipt is the receipt of the co-signed call
	GreetingReceipt *types.Receipt
}

// Flow deploys a factory and a two-owner account, funds the account and
// performs one call authorized by both owners. Every on-chain step waits for
// inclusion before the next one starts.
type Flow struct {
	config    *config.FlowConfig
	loader    artifacts.ILoader
	provider  provider.IChainProvider
	caller    contractCaller.IContractCaller
	coSigner  *cosigner.CoSigner
	builder   *provider.CallBuilder
	submitter *provider.Submitter
	store     persistence.IDeploymentStore
	logger    *zap.Logger
}

// NewFlow wires a flow. store may be nil, in which case the run is only
// journaled in memory.
func NewFlow(
	cfg *config.FlowConfig,
	loader artifacts.ILoader,
	chainProvider provider.IChainProvider,
	caller contractCaller.IContractCaller,
	coSigner *cosigner.CoSigner,
	store persistence.IDeploymentStore,
	logger *zap.Logger,
) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow config: %w", err)
	}
	if store == nil {
		store = memory.NewMemoryPersistence()
	}
	submitter := provider.NewSubmitter(chainProvider, &provider.SubmitterConfig{
		Timeout:      cfg.SubmissionTimeout,
		PollInterval: cfg.ReceiptPollInterval,
	}, logger)

	return &Flow{
		config:    cfg,
		loader:    loader,
		provider:  chainProvider,
		caller:    caller,
		coSigner:  coSigner,
		builder:   provider.NewCallBuilder(chainProvider, logger),
		submitter: submitter,
		store:     store,
		logger:    logger,
	}, nil
}

type loadedArtifacts struct {
	factory *artifacts.Artifact
	account *artifacts.Artifact
	// proxy is nil for direct accounts
	proxy *artifacts.Artifact
}

// deployedBytecode is what the factory deploys for each account
func (la *loadedArtifacts) deployedBytecode() []byte {
	if la.proxy != nil {
		return la.proxy.Bytecode
	}
	return la.account.Bytecode
}

func (f *Flow) loadArtifacts() (*loadedArtifacts, error) {
	names := f.config.Artifacts
	la := &loadedArtifacts{}

	var err error
	if la.factory, err = f.loader.LoadArtifact(names.Factory); err != nil {
		return nil, errors.Wrapf(err, "failed to load factory artifact %s", names.Factory)
	}
	if la.account, err = f.loader.LoadArtifact(names.Account); err != nil {
		return nil, errors.Wrapf(err, "failed to load account artifact %s", names.Account)
	}
	if f.config.AccountKind == config.AccountKindProxied {
		if la.proxy, err = f.loader.LoadArtifact(names.Proxy); err != nil {
			return nil, errors.Wrapf(err, "failed to load proxy artifact %s", names.Proxy)
		}
	}
	return la, nil
}

// Run executes the whole deployment. The run is journaled after every step;
// on failure the record keeps the last completed step and the error.
func (f *Flow) Run(ctx context.Context) (*Result, error) {
	owner1, owner2 := f.coSigner.Owners()

	chainID, err := f.provider.ChainID(ctx)
	if err != nil {
		return nil, &provider.ProviderQueryError{Op: provider.OpChainID, Err: err}
	}

	now := time.Now().UnixMilli()
	record := &persistence.DeploymentRecord{
		ID:          uuid.NewString(),
		AccountKind: f.config.AccountKind.String(),
		ChainID:     chainID.Uint64(),
		Status:      persistence.DeploymentStatusStarted,
		Deployer:    f.caller.GetDeployerAddress().String(),
		Owner1:      owner1.String(),
		Owner2:      owner2.String(),
		Salt:        f.config.Salt.Hex(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.store.SaveDeployment(record); err != nil {
		return nil, errors.Wrap(err, "failed to journal deployment")
	}

	log := f.logger.With(zap.String("runId", record.ID), zap.String("accountKind", record.AccountKind))
	log.Sugar().Infow("Starting deployment",
		"deployer", record.Deployer,
		"owner1", record.Owner1,
		"owner2", record.Owner2,
		"salt", record.Salt,
	)

	result, err := f.run(ctx, record, log)
	if err != nil {
		record.Status = persistence.DeploymentStatusFailed
		record.Error = err.Error()
		f.journal(record, log)
		log.Sugar().Errorw("Deployment failed", "error", err)
		return nil, err
	}
	return result, nil
}

func (f *Flow) run(ctx context.Context, record *persistence.DeploymentRecord, log *zap.Logger) (*Result, error) {
	owner1, owner2 := f.coSigner.Owners()
	result := &Result{RunID: record.ID}

	la, err := f.loadArtifacts()
	if err != nil {
		return nil, err
	}

	codeHash, err := create2.HashBytecode(la.deployedBytecode())
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash account bytecode")
	}
	result.BytecodeHash = codeHash
	record.BytecodeHash = codeHash.Hex()

	if la.proxy != nil {
		impl, receipt, err := f.caller.DeployContract(ctx, la.account, nil, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to deploy account implementation")
		}
		result.Implementation = impl
		record.Implementation = impl.String()
		record.ImplementationTxHash = receipt.TxHash.Hex()
	}

	factory, receipt, err := f.caller.DeployContract(ctx, la.factory, []interface{}{[32]byte(codeHash)}, [][]byte{la.deployedBytecode()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to deploy factory")
	}
	result.Factory = factory
	record.Factory = factory.String()
	record.FactoryTxHash = receipt.TxHash.Hex()
	record.Status = persistence.DeploymentStatusFactoryDeployed
	f.journal(record, log)

	derived, err := DeriveAccountAddress(&AccountParams{
		Kind:           f.config.AccountKind,
		Factory:        factory,
		BytecodeHash:   codeHash,
		Salt:           f.config.Salt,
		Owner1:         owner1,
		Owner2:         owner2,
		Implementation: result.Implementation,
		AccountABI:     la.account.ABI,
	})
	if err != nil {
		return nil, err
	}
	log.Sugar().Infow("Derived account address", "account", derived.String())

	args := []interface{}{owner1, owner2}
	if la.proxy != nil {
		args = []interface{}{result.Implementation, owner1, owner2}
	}
	deployed, receipt, err := f.caller.DeployAccount(ctx, factory, la.factory.ABI, f.config.Salt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to deploy account")
	}
	record.DeployAccountTxHash = receipt.TxHash.Hex()
	if deployed != derived {
		return nil, &cosigner.AddressMismatchError{Derived: derived, Deployed: deployed}
	}
	result.Account = deployed
	record.Account = deployed.String()
	record.Status = persistence.DeploymentStatusAccountDeployed
	f.journal(record, log)

	if f.config.FundingAmount.Sign() > 0 {
		receipt, err := f.caller.FundAccount(ctx, deployed, f.config.FundingAmount)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fund account")
		}
		record.FundingTxHash = receipt.TxHash.Hex()
		record.Status = persistence.DeploymentStatusFunded
		f.journal(record, log)
	} else {
		log.Sugar().Warnw("Funding amount is zero, account left unfunded", "account", deployed.String())
	}

	if result.GreetingBefore, err = f.caller.GetGreeting(ctx, deployed, la.account.ABI); err != nil {
		return nil, errors.Wrap(err, "failed to read greeting")
	}
	record.GreetingBefore = result.GreetingBefore
	log.Sugar().Infow("Greeting before co-signed call", "greeting", result.GreetingBefore)

	data, err := f.caller.EncodeSetGreeting(la.account.ABI, f.config.Greeting)
	if err != nil {
		return nil, err
	}
	receipt, err = f.ExecuteCall(ctx, deployed, deployed, data)
	if err != nil {
		return nil, err
	}
	result.GreetingReceipt = receipt
	record.GreetingTxHash = receipt.TxHash.Hex()

	if result.GreetingAfter, err = f.caller.GetGreeting(ctx, deployed, la.account.ABI); err != nil {
		return nil, errors.Wrap(err, "failed to read greeting")
	}
	record.GreetingAfter = result.GreetingAfter
	log.Sugar().Infow("Greeting after co-signed call", "greeting", result.GreetingAfter)

	record.Status = persistence.DeploymentStatusCompleted
	f.journal(record, log)
	return result, nil
}

// ExecuteCall sends data from the multisig account to `to`, authorized by
// both owners, and waits for inclusion.
func (f *Flow) ExecuteCall(ctx context.Context, account common.Address, to common.Address, data []byte) (*types.Receipt, error) {
	meta := envelope.EIP712Meta{
		GasPerPubdata: new(big.Int).Set(f.config.GasPerPubdata),
	}
	if f.config.Paymaster != (common.Address{}) {
		meta.PaymasterParams = &envelope.PaymasterParams{
			Paymaster:      f.config.Paymaster,
			PaymasterInput: common.CopyBytes(f.config.PaymasterInput),
		}
	}

	tx, err := f.builder.BuildUnsignedCall(ctx, account, to, data, meta)
	if err != nil {
		return nil, err
	}

	signed, err := f.coSigner.Sign(ctx, tx)
	if err != nil {
		return nil, err
	}

	raw, err := cosigner.Assemble(signed)
	if err != nil {
		return nil, err
	}

	f.logger.Sugar().Infow("Submitting co-signed transaction",
		"account", account.String(),
		"to", to.String(),
		"nonce", tx.Nonce,
		"digest", signed.Digest.Hex(),
	)
	return f.submitter.Submit(ctx, raw)
}

// journal saves record. Journal failures are logged and the run continues.
func (f *Flow) journal(record *persistence.DeploymentRecord, log *zap.Logger) {
	record.UpdatedAt = time.Now().UnixMilli()
	if err := f.store.SaveDeployment(record); err != nil {
		log.Sugar().Warnw("Failed to journal deployment", "status", record.Status, "error", err)
	}
}
