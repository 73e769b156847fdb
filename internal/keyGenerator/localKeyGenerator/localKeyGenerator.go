package localKeyGenerator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Layr-Labs/crypto-libs/pkg/ecdsa"
	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type keyEntry struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	keyName    string
	aliasName  string
	address    common.Address
}

// LocalKeyGenerator keeps owner keys in process memory. Used for freshly
// generated owners and for keys supplied as hex through configuration.
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyStore map[string]*keyEntry // keyId -> keyEntry
	mu       sync.RWMutex
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)

func NewLocalKeyGenerator(logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		keyStore: make(map[string]*keyEntry),
	}
}

func newKeyId() string {
	return fmt.Sprintf("local-key-%s", uuid.New().String())
}

// GenerateECDSAKey creates a fresh secp256k1 owner key. The private half
// only lives in this process.
func (l *LocalKeyGenerator) GenerateECDSAKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedECDSAKey, error) {
	privateKey, _, err := ecdsa.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", keyName, err)
	}

	keyId := newKeyId()
	if err := l.LoadPrivateKey(keyId, privateKey, keyName, aliasName); err != nil {
		return nil, err
	}
	return l.GetECDSAKeyById(ctx, keyId)
}

func (l *LocalKeyGenerator) lookup(keyId string) (*keyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.keyStore[keyId]
	if !ok {
		return nil, fmt.Errorf("local key %s not found", keyId)
	}
	return entry, nil
}

func (l *LocalKeyGenerator) GetECDSAKeyById(_ context.Context, keyId string) (*keyGenerator.GeneratedECDSAKey, error) {
	entry, err := l.lookup(keyId)
	if err != nil {
		return nil, err
	}
	return &keyGenerator.GeneratedECDSAKey{
		PublicKey: entry.publicKey,
		Address:   entry.address,
		KeyId:     keyId,
	}, nil
}

// SignDigest signs digest as is, without an Ethereum message prefix
func (l *LocalKeyGenerator) SignDigest(ctx context.Context, keyId string, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := l.lookup(keyId)
	if err != nil {
		return nil, err
	}

	sig, err := entry.privateKey.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("local key %s failed to sign: %w", keyId, err)
	}
	l.logger.Debug("Signed digest",
		zap.String("signer", entry.keyName),
		zap.String("address", entry.address.String()),
		zap.String("digest", digest.Hex()),
	)
	return keyGenerator.NormalizeRecoveryId(sig.Bytes())
}

// LoadPrivateKey adds an existing private key to the store under keyId.
func (l *LocalKeyGenerator) LoadPrivateKey(keyId string, privateKey *ecdsa.PrivateKey, keyName string, aliasName string) error {
	if privateKey == nil {
		return fmt.Errorf("private key cannot be nil")
	}

	address, err := privateKey.DeriveAddress()
	if err != nil {
		return fmt.Errorf("failed to derive Ethereum address from private key: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("local key %s already exists", keyId)
	}

	l.keyStore[keyId] = &keyEntry{
		privateKey: privateKey,
		publicKey:  privateKey.Public(),
		keyName:    keyName,
		aliasName:  aliasName,
		address:    address,
	}

	l.logger.Info("Holding local signing key",
		zap.String("signer", keyName),
		zap.String("keyId", keyId),
		zap.String("address", address.String()),
	)
	return nil
}

// LoadPrivateKeyFromHex parses a hex private key (optional 0x prefix) and
// stores it under a fresh key id, which is returned.
func (l *LocalKeyGenerator) LoadPrivateKeyFromHex(privateKeyHex string, keyName string, aliasName string) (string, error) {
	privateKey, err := ecdsa.NewPrivateKeyFromHexString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key from hex: %w", err)
	}

	keyId := newKeyId()
	if err := l.LoadPrivateKey(keyId, privateKey, keyName, aliasName); err != nil {
		return "", err
	}
	return keyId, nil
}

func (l *LocalKeyGenerator) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyStore)
}

func (l *LocalKeyGenerator) KeyExists(keyId string) bool {
	_, err := l.lookup(keyId)
	return err == nil
}
