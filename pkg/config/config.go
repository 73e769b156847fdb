package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the deployment tooling
const (
	EnvRPCURL             = "MULTISIG_RPC_URL"
	EnvChainID            = "MULTISIG_CHAIN_ID"
	EnvDeployerPrivateKey = "MULTISIG_DEPLOYER_PRIVATE_KEY"
	EnvAccountKind        = "MULTISIG_ACCOUNT_KIND"
	EnvArtifactsDir       = "MULTISIG_ARTIFACTS_DIR"
	EnvPersistenceType    = "MULTISIG_PERSISTENCE_TYPE"
	EnvVerbose            = "MULTISIG_VERBOSE"

	EnvDeployerKMSKeyId   = "MULTISIG_DEPLOYER_KMS_KEY_ID"
	EnvDeployerWeb3Signer = "MULTISIG_DEPLOYER_WEB3SIGNER_URL"
	EnvDeployerAddress    = "MULTISIG_DEPLOYER_ADDRESS"
	EnvOwner1PrivateKey   = "MULTISIG_OWNER1_PRIVATE_KEY"
	EnvOwner2PrivateKey   = "MULTISIG_OWNER2_PRIVATE_KEY"
	EnvOwner1KMSKeyId     = "MULTISIG_OWNER1_KMS_KEY_ID"
	EnvOwner2KMSKeyId     = "MULTISIG_OWNER2_KMS_KEY_ID"
	EnvAWSRegion          = "MULTISIG_AWS_REGION"
	EnvSalt               = "MULTISIG_SALT"
	EnvGreeting           = "MULTISIG_GREETING"
	EnvFundingAmount      = "MULTISIG_FUNDING_AMOUNT_WEI"
	EnvGasPerPubdata      = "MULTISIG_GAS_PER_PUBDATA"
	EnvPaymaster          = "MULTISIG_PAYMASTER"
	EnvSubmissionTimeout  = "MULTISIG_SUBMISSION_TIMEOUT"
	EnvDataPath           = "MULTISIG_DATA_PATH"
	EnvRedisAddress       = "MULTISIG_REDIS_ADDRESS"
	EnvRedisPassword      = "MULTISIG_REDIS_PASSWORD"
	EnvRedisDB            = "MULTISIG_REDIS_DB"
	EnvRedisKeyPrefix     = "MULTISIG_REDIS_KEY_PREFIX"
)

type ChainId uint

const (
	ChainId_ZkSyncMainnet  ChainId = 324
	ChainId_ZkSyncSepolia  ChainId = 300
	ChainId_ZkSyncLocal    ChainId = 270
	ChainId_ZkSyncInMemory ChainId = 260
)

type ChainName string

const (
	ChainName_ZkSyncMainnet  ChainName = "mainnet"
	ChainName_ZkSyncSepolia  ChainName = "sepolia"
	ChainName_ZkSyncLocal    ChainName = "local"
	ChainName_ZkSyncInMemory ChainName = "in-memory"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_ZkSyncMainnet:  ChainName_ZkSyncMainnet,
	ChainId_ZkSyncSepolia:  ChainName_ZkSyncSepolia,
	ChainId_ZkSyncLocal:    ChainName_ZkSyncLocal,
	ChainId_ZkSyncInMemory: ChainName_ZkSyncInMemory,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_ZkSyncMainnet:  ChainId_ZkSyncMainnet,
	ChainName_ZkSyncSepolia:  ChainId_ZkSyncSepolia,
	ChainName_ZkSyncLocal:    ChainId_ZkSyncLocal,
	ChainName_ZkSyncInMemory: ChainId_ZkSyncInMemory,
}

// ContractDeployerAddress is the system contract every deployment goes through
var ContractDeployerAddress = common.HexToAddress("0x0000000000000000000000000000000000008006")

const (
	// DefaultGasPerPubdata is the gas-per-pubdata-byte limit the rollup SDKs
	// attach to every EIP-712 transaction.
	DefaultGasPerPubdata = 50000

	DefaultSubmissionTimeout   = 2 * time.Minute
	DefaultReceiptPollInterval = 500 * time.Millisecond
	DefaultGreeting            = "hola"
	DefaultFundingAmountWei    = "100000000000000" // 0.0001 ETH
	DefaultFactoryArtifact     = "AAFactory"
	DefaultAccountArtifact     = "TwoUserMultisig"
	DefaultProxyArtifact       = "Proxy"
	DefaultFactoryNoProxyName  = "AAFactoryNoProxy"
	DefaultAccountNoProxyName  = "TwoUserMultisigNoProxy"
	DefaultArtifactsDirectory  = "artifacts-zk"
	DefaultPersistenceDataPath = "./data/deployments"
)

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_ZkSyncMainnet,
		ChainId_ZkSyncSepolia,
		ChainId_ZkSyncLocal,
		ChainId_ZkSyncInMemory,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (local), %d (in-memory)",
		ChainId_ZkSyncMainnet, ChainId_ZkSyncSepolia, ChainId_ZkSyncLocal, ChainId_ZkSyncInMemory)
}

// AccountKind selects how the two-owner account is deployed
type AccountKind string

const (
	// AccountKindDirect deploys the multisig bytecode itself from the factory
	AccountKindDirect AccountKind = "direct"
	// AccountKindProxied deploys a proxy pointing at a separately deployed implementation
	AccountKindProxied AccountKind = "proxied"
)

func (k AccountKind) String() string {
	return string(k)
}

func ParseAccountKind(s string) (AccountKind, error) {
	switch AccountKind(strings.ToLower(strings.TrimSpace(s))) {
	case AccountKindDirect:
		return AccountKindDirect, nil
	case AccountKindProxied:
		return AccountKindProxied, nil
	default:
		return "", fmt.Errorf("unsupported account kind %q, expected %q or %q", s, AccountKindDirect, AccountKindProxied)
	}
}

// ArtifactNames are the compiled contract names a flow variant needs
type ArtifactNames struct {
	Factory string
	Account string
	// Proxy is only set for AccountKindProxied
	Proxy string
}

// DefaultArtifactNames returns the contract names used by each variant
func DefaultArtifactNames(kind AccountKind) ArtifactNames {
	if kind == AccountKindProxied {
		return ArtifactNames{
			Factory: DefaultFactoryArtifact,
			Account: DefaultAccountArtifact,
			Proxy:   DefaultProxyArtifact,
		}
	}
	return ArtifactNames{
		Factory: DefaultFactoryNoProxyName,
		Account: DefaultAccountNoProxyName,
	}
}

// FlowConfig holds everything the deployment flow needs besides its collaborators
type FlowConfig struct {
	AccountKind AccountKind   `json:"accountKind" yaml:"accountKind"`
	Artifacts   ArtifactNames `json:"artifacts" yaml:"artifacts"`

	// Salt used for the deterministic account address; zero hash by default
	Salt common.Hash `json:"salt" yaml:"salt"`

	FundingAmount *big.Int `json:"fundingAmount" yaml:"fundingAmount"`
	Greeting      string   `json:"greeting" yaml:"greeting"`

	// GasPerPubdata is the per-pubdata-byte fee unit placed in the EIP-712 metadata
	GasPerPubdata *big.Int `json:"gasPerPubdata" yaml:"gasPerPubdata"`

	// Paymaster pays the fee when set; the account pays in the base token otherwise
	Paymaster      common.Address `json:"paymaster" yaml:"paymaster"`
	PaymasterInput []byte         `json:"paymasterInput" yaml:"paymasterInput"`

	SubmissionTimeout   time.Duration `json:"submissionTimeout" yaml:"submissionTimeout"`
	ReceiptPollInterval time.Duration `json:"receiptPollInterval" yaml:"receiptPollInterval"`
}

// NewDefaultFlowConfig returns a FlowConfig populated with the defaults for kind
func NewDefaultFlowConfig(kind AccountKind) *FlowConfig {
	funding, _ := new(big.Int).SetString(DefaultFundingAmountWei, 10)
	return &FlowConfig{
		AccountKind:         kind,
		Artifacts:           DefaultArtifactNames(kind),
		FundingAmount:       funding,
		Greeting:            DefaultGreeting,
		GasPerPubdata:       big.NewInt(DefaultGasPerPubdata),
		SubmissionTimeout:   DefaultSubmissionTimeout,
		ReceiptPollInterval: DefaultReceiptPollInterval,
	}
}

func (fc *FlowConfig) Validate() error {
	var allErrors field.ErrorList
	if fc.AccountKind != AccountKindDirect && fc.AccountKind != AccountKindProxied {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("accountKind"), fc.AccountKind,
			[]string{AccountKindDirect.String(), AccountKindProxied.String()}))
	}
	if fc.Artifacts.Factory == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("artifacts", "factory"), "factory artifact name is required"))
	}
	if fc.Artifacts.Account == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("artifacts", "account"), "account artifact name is required"))
	}
	if fc.AccountKind == AccountKindProxied && fc.Artifacts.Proxy == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("artifacts", "proxy"), "proxy artifact name is required for proxied accounts"))
	}
	if fc.FundingAmount == nil || fc.FundingAmount.Sign() < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fundingAmount"), fc.FundingAmount, "must be zero or positive"))
	}
	if fc.GasPerPubdata == nil || fc.GasPerPubdata.Sign() <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("gasPerPubdata"), fc.GasPerPubdata, "must be positive"))
	}
	if fc.SubmissionTimeout <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("submissionTimeout"), fc.SubmissionTimeout.String(), "must be positive"))
	}
	if fc.ReceiptPollInterval <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("receiptPollInterval"), fc.ReceiptPollInterval.String(), "must be positive"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// SignerKind selects the backend that holds a signing key
type SignerKind string

const (
	SignerKindPrivateKey SignerKind = "privateKey"
	SignerKindWeb3Signer SignerKind = "web3signer"
	SignerKindAWSKMS     SignerKind = "awsKms"
)

type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("url"), "url is required"))
	}
	if rsc.FromAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("fromAddress"), "fromAddress is required"))
	} else if !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

type AWSKMSSignerConfig struct {
	KeyId  string `json:"keyId" yaml:"keyId"`
	Region string `json:"region" yaml:"region"`
}

func (a *AWSKMSSignerConfig) Validate() error {
	var allErrors field.ErrorList
	if a.KeyId == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyId"), "keyId is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// SignerConfig describes one signing identity. Exactly one backend is used,
// selected by Kind.
type SignerConfig struct {
	Kind         SignerKind          `json:"kind" yaml:"kind"`
	PrivateKey   string              `json:"privateKey" yaml:"privateKey"`
	RemoteSigner *RemoteSignerConfig `json:"remoteSigner" yaml:"remoteSigner"`
	AWSKMS       *AWSKMSSignerConfig `json:"awsKms" yaml:"awsKms"`
}

func (sc *SignerConfig) Validate() error {
	switch sc.Kind {
	case SignerKindPrivateKey:
		key := strings.TrimPrefix(sc.PrivateKey, "0x")
		if key == "" {
			return fmt.Errorf("private key cannot be empty")
		}
		if len(key) != 64 {
			return fmt.Errorf("private key must be 32 bytes (64 hex chars), got %d chars", len(key))
		}
		return nil
	case SignerKindWeb3Signer:
		if sc.RemoteSigner == nil {
			return fmt.Errorf("remote signer config is required for %s signers", sc.Kind)
		}
		return sc.RemoteSigner.Validate()
	case SignerKindAWSKMS:
		if sc.AWSKMS == nil {
			return fmt.Errorf("aws kms config is required for %s signers", sc.Kind)
		}
		return sc.AWSKMS.Validate()
	default:
		return fmt.Errorf("unsupported signer kind: %q", sc.Kind)
	}
}

type PersistenceType string

const (
	PersistenceTypeNone   PersistenceType = ""
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

type PersistenceConfig struct {
	Type          PersistenceType `json:"type" yaml:"type"`
	DataPath      string          `json:"dataPath" yaml:"dataPath"`
	RedisAddress  string          `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword string          `json:"redisPassword" yaml:"redisPassword"`
	RedisDB       int             `json:"redisDb" yaml:"redisDb"`
	KeyPrefix     string          `json:"keyPrefix" yaml:"keyPrefix"`
}

func (pc *PersistenceConfig) Validate() error {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceTypeNone, PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDb"), pc.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), pc.Type,
			[]string{string(PersistenceTypeMemory), string(PersistenceTypeBadger), string(PersistenceTypeRedis)}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// DeployConfig is everything the deployMultisig command needs
type DeployConfig struct {
	ChainID   ChainId
	ChainName ChainName
	RpcUrl    string

	ArtifactsDir string

	Deployer *SignerConfig
	// Owners is empty when owner keys should be generated, otherwise owner 1 then owner 2
	Owners []*SignerConfig

	Flow        *FlowConfig
	Persistence *PersistenceConfig
}

func (dc *DeployConfig) Validate() error {
	var allErrors field.ErrorList
	if _, ok := ChainIdToName[dc.ChainID]; !ok {
		allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), dc.ChainID,
			fmt.Sprintf("unsupported chain, expected one of %s", GetSupportedChainIDsString())))
	}
	if dc.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpcUrl is required"))
	}
	if dc.ArtifactsDir == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("artifactsDir"), "artifactsDir is required"))
	}
	if dc.Deployer == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("deployer"), "deployer signer is required"))
	} else if err := dc.Deployer.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("deployer"), dc.Deployer.Kind, err.Error()))
	}
	if len(dc.Owners) != 0 && len(dc.Owners) != 2 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("owners"), len(dc.Owners), "configure both owners or neither"))
	}
	for i, owner := range dc.Owners {
		if owner == nil {
			allErrors = append(allErrors, field.Required(field.NewPath("owners").Index(i), "owner signer is required"))
			continue
		}
		if err := owner.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("owners").Index(i), owner.Kind, err.Error()))
		}
	}
	if dc.Flow == nil {
		allErrors = append(allErrors, field.Required(field.NewPath("flow"), "flow config is required"))
	} else if err := dc.Flow.Validate(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("flow"), dc.Flow.AccountKind, err.Error()))
	}
	if dc.Persistence != nil {
		if err := dc.Persistence.Validate(); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("persistence"), dc.Persistence.Type, err.Error()))
		}
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
