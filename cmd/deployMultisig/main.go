package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/contractCaller/caller"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/cosigner"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/flow"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/logger"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/persistence"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "deploy-multisig",
		Usage: "Deploy and exercise a two-owner multisig account",
		Description: `Deploys an account factory and a two-owner multisig account, funds the
account and sends one setGreeting call authorized by both owners.

The account is either the multisig bytecode itself (--account-kind direct) or a
proxy pointing at a separately deployed implementation (--account-kind proxied).
Owner keys are generated in memory unless both owners are configured.`,
		Version: "1.0.0",
		Flags:   append(commonFlags(), deployFlags()...),
		Action:  runDeploy,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List journaled deployments",
				Flags:  commonFlags(),
				Action: runList,
			},
			{
				Name:      "show",
				Usage:     "Print one journaled deployment as JSON",
				ArgsUsage: "<run id | account address>",
				Flags:     commonFlags(),
				Action:    runShow,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "persistence-type",
			Usage:   "Deployment journal backend: memory, badger or redis",
			Value:   string(config.PersistenceTypeBadger),
			EnvVars: []string{config.EnvPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger journal directory",
			Value:   config.DefaultPersistenceDataPath,
			EnvVars: []string{config.EnvDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis journal address (host:port)",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis journal password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis journal database number",
			EnvVars: []string{config.EnvRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every journal key in Redis",
			EnvVars: []string{config.EnvRedisKeyPrefix},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvVerbose},
		},
	}
}

func deployFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "Rollup RPC endpoint URL",
			Value:   "http://127.0.0.1:8011",
			EnvVars: []string{config.EnvRPCURL},
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Rollup chain ID: %s", config.GetSupportedChainIDsString()),
			Value:   uint64(config.ChainId_ZkSyncInMemory),
			EnvVars: []string{config.EnvChainID},
		},
		&cli.StringFlag{
			Name:    "account-kind",
			Usage:   "Account variant: direct or proxied",
			Value:   config.AccountKindProxied.String(),
			EnvVars: []string{config.EnvAccountKind},
		},
		&cli.StringFlag{
			Name:    "artifacts-dir",
			Usage:   "Directory containing the compiled contract artifacts",
			Value:   config.DefaultArtifactsDirectory,
			EnvVars: []string{config.EnvArtifactsDir},
		},
		&cli.StringFlag{
			Name:    "deployer-private-key",
			Usage:   "Private key (hex) of the wallet paying for deployments",
			EnvVars: []string{config.EnvDeployerPrivateKey},
		},
		&cli.StringFlag{
			Name:    "deployer-kms-key-id",
			Usage:   "AWS KMS key id of the deployer wallet",
			EnvVars: []string{config.EnvDeployerKMSKeyId},
		},
		&cli.StringFlag{
			Name:    "deployer-web3signer-url",
			Usage:   "Web3Signer URL holding the deployer key",
			EnvVars: []string{config.EnvDeployerWeb3Signer},
		},
		&cli.StringFlag{
			Name:    "deployer-address",
			Usage:   "Deployer address known to Web3Signer",
			EnvVars: []string{config.EnvDeployerAddress},
		},
		&cli.StringFlag{
			Name:    "owner1-private-key",
			Usage:   "Private key (hex) of owner 1",
			EnvVars: []string{config.EnvOwner1PrivateKey},
		},
		&cli.StringFlag{
			Name:    "owner2-private-key",
			Usage:   "Private key (hex) of owner 2",
			EnvVars: []string{config.EnvOwner2PrivateKey},
		},
		&cli.StringFlag{
			Name:    "owner1-kms-key-id",
			Usage:   "AWS KMS key id of owner 1",
			EnvVars: []string{config.EnvOwner1KMSKeyId},
		},
		&cli.StringFlag{
			Name:    "owner2-kms-key-id",
			Usage:   "AWS KMS key id of owner 2",
			EnvVars: []string{config.EnvOwner2KMSKeyId},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region of the KMS keys",
			EnvVars: []string{config.EnvAWSRegion},
		},
		&cli.StringFlag{
			Name:    "salt",
			Usage:   "32-byte salt (hex) for the account address",
			Value:   common.Hash{}.Hex(),
			EnvVars: []string{config.EnvSalt},
		},
		&cli.StringFlag{
			Name:    "greeting",
			Usage:   "Greeting set by the co-signed call",
			Value:   config.DefaultGreeting,
			EnvVars: []string{config.EnvGreeting},
		},
		&cli.StringFlag{
			Name:    "funding-amount",
			Usage:   "Wei sent from the deployer to the new account",
			Value:   config.DefaultFundingAmountWei,
			EnvVars: []string{config.EnvFundingAmount},
		},
		&cli.Uint64Flag{
			Name:    "gas-per-pubdata",
			Usage:   "Gas per pubdata byte limit of every EIP-712 transaction",
			Value:   config.DefaultGasPerPubdata,
			EnvVars: []string{config.EnvGasPerPubdata},
		},
		&cli.StringFlag{
			Name:    "paymaster",
			Usage:   "Paymaster paying the co-signed call's fee",
			EnvVars: []string{config.EnvPaymaster},
		},
		&cli.StringFlag{
			Name:  "paymaster-input",
			Usage: "Paymaster input (hex)",
		},
		&cli.DurationFlag{
			Name:    "submission-timeout",
			Usage:   "How long to wait for each transaction to be included",
			Value:   config.DefaultSubmissionTimeout,
			EnvVars: []string{config.EnvSubmissionTimeout},
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Minimum spacing between receipt queries",
			Value: config.DefaultReceiptPollInterval,
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func parsePersistenceConfig(c *cli.Context) *config.PersistenceConfig {
	return &config.PersistenceConfig{
		Type:          config.PersistenceType(c.String("persistence-type")),
		DataPath:      c.String("data-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
		KeyPrefix:     c.String("redis-key-prefix"),
	}
}

// parseSigner picks the backend from whichever flag is set
func parseSigner(privateKey, kmsKeyId, web3SignerUrl, address, region string) *config.SignerConfig {
	switch {
	case privateKey != "":
		return &config.SignerConfig{Kind: config.SignerKindPrivateKey, PrivateKey: privateKey}
	case kmsKeyId != "":
		return &config.SignerConfig{Kind: config.SignerKindAWSKMS, AWSKMS: &config.AWSKMSSignerConfig{KeyId: kmsKeyId, Region: region}}
	case web3SignerUrl != "":
		return &config.SignerConfig{Kind: config.SignerKindWeb3Signer, RemoteSigner: &config.RemoteSignerConfig{Url: web3SignerUrl, FromAddress: address}}
	default:
		return nil
	}
}

func parseDeployConfig(c *cli.Context) (*config.DeployConfig, error) {
	kind, err := config.ParseAccountKind(c.String("account-kind"))
	if err != nil {
		return nil, err
	}

	flowConfig := config.NewDefaultFlowConfig(kind)
	flowConfig.Greeting = c.String("greeting")
	flowConfig.GasPerPubdata = new(big.Int).SetUint64(c.Uint64("gas-per-pubdata"))
	flowConfig.SubmissionTimeout = c.Duration("submission-timeout")
	flowConfig.ReceiptPollInterval = c.Duration("poll-interval")

	salt, err := hexutil.Decode(c.String("salt"))
	if err != nil || len(salt) != common.HashLength {
		return nil, fmt.Errorf("salt must be 32 bytes of hex, got %q", c.String("salt"))
	}
	flowConfig.Salt = common.BytesToHash(salt)

	funding, ok := new(big.Int).SetString(c.String("funding-amount"), 10)
	if !ok {
		return nil, fmt.Errorf("invalid funding amount %q", c.String("funding-amount"))
	}
	flowConfig.FundingAmount = funding

	if paymaster := c.String("paymaster"); paymaster != "" {
		if !common.IsHexAddress(paymaster) {
			return nil, fmt.Errorf("invalid paymaster address %q", paymaster)
		}
		flowConfig.Paymaster = common.HexToAddress(paymaster)
		if input := c.String("paymaster-input"); input != "" {
			if flowConfig.PaymasterInput, err = hexutil.Decode(input); err != nil {
				return nil, fmt.Errorf("invalid paymaster input: %w", err)
			}
		}
	}

	chainId := config.ChainId(c.Uint64("chain-id"))
	region := c.String("aws-region")
	dc := &config.DeployConfig{
		ChainID:      chainId,
		ChainName:    config.ChainIdToName[chainId],
		RpcUrl:       c.String("rpc-url"),
		ArtifactsDir: c.String("artifacts-dir"),
		Deployer: parseSigner(
			c.String("deployer-private-key"),
			c.String("deployer-kms-key-id"),
			c.String("deployer-web3signer-url"),
			c.String("deployer-address"),
			region,
		),
		Flow:        flowConfig,
		Persistence: parsePersistenceConfig(c),
	}

	owner1 := parseSigner(c.String("owner1-private-key"), c.String("owner1-kms-key-id"), "", "", region)
	owner2 := parseSigner(c.String("owner2-private-key"), c.String("owner2-kms-key-id"), "", "", region)
	if owner1 != nil || owner2 != nil {
		dc.Owners = []*config.SignerConfig{owner1, owner2}
	}
	return dc, nil
}

func runDeploy(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	deployConfig, err := parseDeployConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := deployConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l.Sugar().Infow("Using chain", "name", deployConfig.ChainName, "chain_id", deployConfig.ChainID)

	chainProvider, err := provider.NewEthProviderFromConfig(ctx, &provider.ProviderConfig{RpcUrl: deployConfig.RpcUrl}, l)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", deployConfig.RpcUrl, err)
	}
	if err := checkChainId(ctx, chainProvider, deployConfig.ChainID); err != nil {
		return err
	}

	loader, err := artifacts.NewFileLoader(deployConfig.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("failed to open artifacts: %w", err)
	}

	store, err := flow.NewDeploymentStore(deployConfig.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to open deployment journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	submitter := provider.NewSubmitter(chainProvider, &provider.SubmitterConfig{
		Timeout:      deployConfig.Flow.SubmissionTimeout,
		PollInterval: deployConfig.Flow.ReceiptPollInterval,
	}, l)
	deployer, err := flow.NewDeployer(ctx, deployConfig.Deployer, chainProvider, submitter, deployConfig.Flow.GasPerPubdata, l)
	if err != nil {
		return fmt.Errorf("failed to create deployer: %w", err)
	}

	owners, err := flow.NewOwnerSigners(ctx, deployConfig.Owners, l)
	if err != nil {
		return fmt.Errorf("failed to create owner signers: %w", err)
	}
	coSigner, err := cosigner.NewCoSigner(owners, l)
	if err != nil {
		return err
	}

	contractCaller := caller.NewContractCaller(chainProvider, deployer, l)
	f, err := flow.NewFlow(deployConfig.Flow, loader, chainProvider, contractCaller, coSigner, store, l)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := f.Run(ctx)
	if err != nil {
		return err
	}

	l.Sugar().Infow("Deployment complete",
		"runId", result.RunID,
		"factory", result.Factory.String(),
		"implementation", result.Implementation.String(),
		"account", result.Account.String(),
		"greetingBefore", result.GreetingBefore,
		"greetingAfter", result.GreetingAfter,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

func checkChainId(ctx context.Context, chainProvider provider.IChainProvider, expected config.ChainId) error {
	chainId, err := chainProvider.ChainID(ctx)
	if err != nil {
		return &provider.ProviderQueryError{Op: provider.OpChainID, Err: err}
	}
	if chainId.Uint64() != uint64(expected) {
		return fmt.Errorf("rpc endpoint serves chain %s, expected %d", chainId.String(), expected)
	}
	return nil
}

func runList(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := flow.OpenDeploymentJournal(parsePersistenceConfig(c), l)
	if err != nil {
		return fmt.Errorf("failed to open deployment journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListDeployments()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\tchain=%d\taccount=%s\t%s\n",
			time.UnixMilli(r.CreatedAt).UTC().Format(time.RFC3339), r.ID, r.AccountKind, r.ChainID, r.Account, r.Status)
		if r.Error != "" {
			fmt.Printf("\terror: %s\n", r.Error)
		}
	}
	return nil
}

// runShow looks the argument up as an account address first, then as a run id
func runShow(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one run id or account address")
	}
	query := c.Args().First()

	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := flow.OpenDeploymentJournal(parsePersistenceConfig(c), l)
	if err != nil {
		return fmt.Errorf("failed to open deployment journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	var record *persistence.DeploymentRecord
	if common.IsHexAddress(query) {
		if record, err = store.LoadDeploymentByAccount(query); err != nil {
			return err
		}
	}
	if record == nil {
		if record, err = store.LoadDeployment(query); err != nil {
			return err
		}
	}
	if record == nil {
		return fmt.Errorf("no deployment found for %s", query)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
