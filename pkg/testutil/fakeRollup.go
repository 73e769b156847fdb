package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/cosigner"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/provider"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// OpSend and OpReceipt extend the provider query ops for failure injection
const (
	OpSend    = "send"
	OpReceipt = "receipt"
)

const (
	DefaultFakeChainID     = 260
	DefaultFakeGasEstimate = 1_000_000
)

var DefaultFakeGasPrice = big.NewInt(25_000_000)

// ContractKind selects the behaviour the fake rollup gives a bytecode
type ContractKind int

const (
	ContractKindFactory ContractKind = iota + 1
	ContractKindAccount
	ContractKindProxy
)

type registeredCode struct {
	kind     ContractKind
	artifact *artifacts.Artifact
}

// FakeRollup is an in-memory chain that accepts 0x71 and EIP-1559
// transactions. It checks signatures, nonces and balances the way the rollup
// does and runs the deployer, factory and account contracts natively.
type FakeRollup struct {
	chainID     *big.Int
	gasPrice    *big.Int
	gasEstimate uint64
	blockNumber uint64

	codes     map[common.Hash]*registeredCode
	published map[common.Hash]bool
	contracts map[common.Address]*fakeContract
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	receipts  map[common.Hash]*types.Receipt
	polls     map[common.Hash]int
	failures  map[string]error
	sent      [][]byte

	receiptDelay     int
	withholdReceipts bool
	misderive        bool

	logger *zap.Logger
	mu     sync.Mutex
}

var _ provider.IChainProvider = (*FakeRollup)(nil)

func NewFakeRollup(logger *zap.Logger) *FakeRollup {
	return &FakeRollup{
		chainID:     big.NewInt(DefaultFakeChainID),
		gasPrice:    new(big.Int).Set(DefaultFakeGasPrice),
		gasEstimate: DefaultFakeGasEstimate,
		codes:       make(map[common.Hash]*registeredCode),
		published:   make(map[common.Hash]bool),
		contracts:   make(map[common.Address]*fakeContract),
		balances:    make(map[common.Address]*big.Int),
		nonces:      make(map[common.Address]uint64),
		receipts:    make(map[common.Hash]*types.Receipt),
		polls:       make(map[common.Hash]int),
		failures:    make(map[string]error),
		logger:      logger,
	}
}

// NewFakeRollupWithFixtures registers the fixture contracts of both account
// kinds found through loader.
func NewFakeRollupWithFixtures(loader artifacts.ILoader, logger *zap.Logger) (*FakeRollup, error) {
	f := NewFakeRollup(logger)
	kinds := map[string]ContractKind{
		config.DefaultFactoryArtifact:    ContractKindFactory,
		config.DefaultFactoryNoProxyName: ContractKindFactory,
		config.DefaultAccountArtifact:    ContractKindAccount,
		config.DefaultAccountNoProxyName: ContractKindAccount,
		config.DefaultProxyArtifact:      ContractKindProxy,
	}
	for name, kind := range kinds {
		artifact, err := loader.LoadArtifact(name)
		if err != nil {
			return nil, err
		}
		if err := f.RegisterArtifact(kind, artifact); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// RegisterArtifact makes deployments of artifact's bytecode behave as kind
func (f *FakeRollup) RegisterArtifact(kind ContractKind, artifact *artifacts.Artifact) error {
	codeHash, err := create2.HashBytecode(artifact.Bytecode)
	if err != nil {
		return fmt.Errorf("failed to hash bytecode of %s: %w", artifact.ContractName, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[codeHash] = &registeredCode{kind: kind, artifact: artifact}
	return nil
}

func (f *FakeRollup) SetBalance(account common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = new(big.Int).Set(wei)
}

func (f *FakeRollup) Balance(account common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balanceOf(account))
}

func (f *FakeRollup) SetGasPrice(wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasPrice = new(big.Int).Set(wei)
}

// SetFailure makes every later query of op fail with err; nil clears it
func (f *FakeRollup) SetFailure(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// SetReceiptDelay makes the first n receipt queries of each tx report NotFound
func (f *FakeRollup) SetReceiptDelay(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptDelay = n
}

// WithholdReceipts accepts transactions but never reports them included
func (f *FakeRollup) WithholdReceipts(withhold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withholdReceipts = withhold
}

// SetMisderiveAccounts makes factories deploy accounts at an address other
// than the create2 derivation.
func (f *FakeRollup) SetMisderiveAccounts(misderive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misderive = misderive
}

// SentTransactions returns the raw bytes of every accepted transaction
func (f *FakeRollup) SentTransactions() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	for i, raw := range f.sent {
		out[i] = common.CopyBytes(raw)
	}
	return out
}

// Greeting returns the stored greeting of the account at addr
func (f *FakeRollup) Greeting(addr common.Address) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[addr]
	if !ok {
		return "", false
	}
	return c.greeting, true
}

// Owners returns the owners of the account at addr
func (f *FakeRollup) Owners(addr common.Address) (common.Address, common.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[addr]
	if !ok || !c.hasOwners() {
		return common.Address{}, common.Address{}, false
	}
	return c.owner1, c.owner2, true
}

func (f *FakeRollup) IsDeployed(addr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.contracts[addr]
	return ok
}

func (f *FakeRollup) failure(op string) error {
	return f.failures[op]
}

func (f *FakeRollup) balanceOf(account common.Address) *big.Int {
	if b, ok := f.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (f *FakeRollup) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpChainID); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *FakeRollup) EstimateGas(ctx context.Context, msg goEthereum.CallMsg, meta *envelope.EIP712Meta) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpEstimateGas); err != nil {
		return 0, err
	}
	return f.gasEstimate, nil
}

func (f *FakeRollup) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpGasPrice); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *FakeRollup) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpNonce); err != nil {
		return 0, err
	}
	return f.nonces[account], nil
}

func (f *FakeRollup) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpBalance); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.balanceOf(account)), nil
}

func (f *FakeRollup) CallContract(ctx context.Context, msg goEthereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(provider.OpCall); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("call without target")
	}
	c, ok := f.contracts[*msg.To]
	if !ok {
		return nil, fmt.Errorf("execution reverted: no contract at %s", msg.To.String())
	}
	return f.view(c, msg.Data)
}

func (f *FakeRollup) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpSend); err != nil {
		return common.Hash{}, err
	}
	if len(raw) == 0 {
		return common.Hash{}, fmt.Errorf("empty transaction")
	}

	var (
		pending *pendingTx
		err     error
	)
	switch raw[0] {
	case byte(envelope.EIP712TxType):
		pending, err = f.decodeEIP712(raw)
	case types.DynamicFeeTxType:
		pending, err = f.decodeStandard(raw)
	default:
		err = fmt.Errorf("unsupported transaction type %d", raw[0])
	}
	if err != nil {
		return common.Hash{}, err
	}
	if err := f.checkNonceAndFunds(pending); err != nil {
		return common.Hash{}, err
	}

	txHash := crypto.Keccak256Hash(raw)
	f.receipts[txHash] = f.execute(pending, txHash)
	f.polls[txHash] = f.receiptDelay
	f.sent = append(f.sent, common.CopyBytes(raw))
	return txHash, nil
}

func (f *FakeRollup) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpReceipt); err != nil {
		return nil, err
	}
	receipt, ok := f.receipts[txHash]
	if !ok || f.withholdReceipts {
		return nil, goEthereum.NotFound
	}
	if f.polls[txHash] > 0 {
		f.polls[txHash]--
		return nil, goEthereum.NotFound
	}
	return receipt, nil
}

// pendingTx is a decoded, authenticated transaction of either type
type pendingTx struct {
	from        common.Address
	to          common.Address
	nonce       uint64
	gasLimit    uint64
	gasPrice    *big.Int
	value       *big.Int
	data        []byte
	factoryDeps [][]byte
	paymaster   common.Address
}

func (f *FakeRollup) decodeEIP712(raw []byte) (*pendingTx, error) {
	tx, err := envelope.DecodeEIP712Tx(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx.ChainID == nil || tx.ChainID.Cmp(f.chainID) != 0 {
		return nil, fmt.Errorf("invalid chain id %v", tx.ChainID)
	}

	digest, err := tx.SigningHash()
	if err != nil {
		return nil, err
	}

	if c, ok := f.contracts[tx.From]; ok && c.hasOwners() {
		verifier := cosigner.ReferenceVerifier{Owner1: c.owner1, Owner2: c.owner2}
		if err := verifier.Verify(digest, tx.Meta.CustomSignature); err != nil {
			return nil, fmt.Errorf("failed to validate the transaction. reason: Validation revert: Account validation error: %v", err)
		}
	} else {
		ok, err := signer.VerifySignature(digest, tx.Meta.CustomSignature, tx.From)
		if err != nil || !ok {
			return nil, fmt.Errorf("failed to validate the transaction. reason: invalid sender signature")
		}
	}

	p := &pendingTx{
		from:        tx.From,
		to:          tx.To,
		nonce:       tx.Nonce,
		gasLimit:    tx.GasLimit,
		gasPrice:    bigOrZero(tx.MaxFeePerGas),
		value:       bigOrZero(tx.Value),
		data:        tx.Data,
		factoryDeps: tx.Meta.FactoryDeps,
	}
	if tx.Meta.PaymasterParams != nil {
		p.paymaster = tx.Meta.PaymasterParams.Paymaster
	}
	return p, nil
}

func (f *FakeRollup) decodeStandard(raw []byte) (*pendingTx, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx.ChainId().Cmp(f.chainID) != 0 {
		return nil, fmt.Errorf("invalid chain id %v", tx.ChainId())
	}
	from, err := types.Sender(types.LatestSignerForChainID(f.chainID), &tx)
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if tx.To() == nil {
		return nil, fmt.Errorf("contract creation must go through the contract deployer")
	}
	return &pendingTx{
		from:     from,
		to:       *tx.To(),
		nonce:    tx.Nonce(),
		gasLimit: tx.Gas(),
		gasPrice: new(big.Int).Set(tx.GasFeeCap()),
		value:    new(big.Int).Set(tx.Value()),
		data:     tx.Data(),
	}, nil
}

func (f *FakeRollup) fee(p *pendingTx) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(p.gasLimit), p.gasPrice)
}

func (f *FakeRollup) checkNonceAndFunds(p *pendingTx) error {
	if expected := f.nonces[p.from]; p.nonce != expected {
		return fmt.Errorf("nonce mismatch for %s: expected %d, got %d", p.from.String(), expected, p.nonce)
	}

	fee := f.fee(p)
	if p.paymaster != (common.Address{}) {
		if f.balanceOf(p.paymaster).Cmp(fee) < 0 {
			return fmt.Errorf("failed to validate the transaction. reason: Validation revert: Paymaster validation error: not enough balance to cover the fee")
		}
		fee = new(big.Int)
	}
	if f.balanceOf(p.from).Cmp(new(big.Int).Add(fee, p.value)) < 0 {
		return fmt.Errorf("failed to validate the transaction. reason: Validation revert: Failed to pay for the transaction: not enough balance to cover the fee and value")
	}
	return nil
}

func (f *FakeRollup) execute(p *pendingTx, txHash common.Hash) *types.Receipt {
	f.blockNumber++
	f.nonces[p.from]++

	payer := p.from
	if p.paymaster != (common.Address{}) {
		payer = p.paymaster
	}
	f.balances[payer] = new(big.Int).Sub(f.balanceOf(payer), f.fee(p))

	receipt := &types.Receipt{
		Type:        types.DynamicFeeTxType,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(f.blockNumber),
		GasUsed:     p.gasLimit,
		Status:      types.ReceiptStatusSuccessful,
	}

	for _, dep := range p.factoryDeps {
		if h, err := create2.HashBytecode(dep); err == nil {
			f.published[h] = true
		}
	}

	logs, err := f.call(p)
	if err != nil {
		f.logger.Sugar().Debugw("Fake rollup call reverted", "txHash", txHash.Hex(), "error", err)
		receipt.Status = types.ReceiptStatusFailed
		return receipt
	}

	f.balances[p.from] = new(big.Int).Sub(f.balanceOf(p.from), p.value)
	f.balances[p.to] = new(big.Int).Add(f.balanceOf(p.to), p.value)

	for i, l := range logs {
		l.TxHash = txHash
		l.BlockNumber = f.blockNumber
		l.Index = uint(i)
	}
	receipt.Logs = logs
	return receipt
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
