package signer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/internal/keyGenerator"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const web3SignerRequestTimeout = 30 * time.Second

// Web3Signer asks a remote Web3Signer instance to sign typed data with the
// owner key it holds. The remote side hashes the typed data itself, so every
// signature is checked against the locally computed digest.
type Web3Signer struct {
	client  *rpc.Client
	address common.Address
	logger  *zap.Logger
}

var _ ITransferSigner = (*Web3Signer)(nil)

func NewWeb3Signer(client *rpc.Client, address common.Address, logger *zap.Logger) *Web3Signer {
	return &Web3Signer{
		client:  client,
		address: address,
		logger:  logger,
	}
}

// NewWeb3SignerFromConfig dials the signer described by cfg. TLS is enabled
// when a CA certificate is configured; a client certificate and key enable
// mutual TLS.
func NewWeb3SignerFromConfig(ctx context.Context, cfg *config.RemoteSignerConfig, logger *zap.Logger) (*Web3Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote signer config: %w", err)
	}

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	client, err := rpc.DialOptions(ctx, cfg.Url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial web3signer at %s: %w", cfg.Url, err)
	}

	logger.Sugar().Infow("Created Web3Signer client",
		"url", cfg.Url,
		"address", cfg.FromAddress,
		"tls", cfg.CACert != "",
	)
	return NewWeb3Signer(client, common.HexToAddress(cfg.FromAddress), logger), nil
}

func newHTTPClient(cfg *config.RemoteSignerConfig) (*http.Client, error) {
	client := &http.Client{Timeout: web3SignerRequestTimeout}
	if cfg.CACert == "" {
		return client, nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
		return nil, fmt.Errorf("failed to parse web3signer CA certificate")
	}
	tlsConfig := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	if cfg.Cert != "" || cfg.Key != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.Cert), []byte(cfg.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to load web3signer client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return client, nil
}

func (w *Web3Signer) Address() common.Address {
	return w.address
}

func (w *Web3Signer) SignTypedData(ctx context.Context, typedData *apitypes.TypedData, digest common.Hash) ([]byte, error) {
	if typedData == nil {
		return nil, fmt.Errorf("web3signer requires typed data")
	}

	var result hexutil.Bytes
	if err := w.client.CallContext(ctx, &result, "eth_signTypedData", w.address, typedData); err != nil {
		return nil, fmt.Errorf("eth_signTypedData failed for %s: %w", w.address.String(), err)
	}

	sig, err := keyGenerator.NormalizeRecoveryId(result)
	if err != nil {
		return nil, fmt.Errorf("invalid signature from web3signer: %w", err)
	}

	ok, err := VerifySignature(digest, sig, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to verify web3signer signature: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("web3signer signature for %s does not match the expected digest %s", w.address.String(), digest.Hex())
	}

	w.logger.Sugar().Debugw("Signed typed data with Web3Signer",
		"address", w.address.String(),
		"digest", digest.Hex(),
	)
	return sig, nil
}

// SignTransaction signs a dynamic-fee transaction with eth_signTransaction and
// checks that the returned transaction is the one requested.
func (w *Web3Signer) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	if tx.Type() != types.DynamicFeeTxType {
		return nil, fmt.Errorf("web3signer only signs dynamic fee transactions, got type %d", tx.Type())
	}

	txData := map[string]interface{}{
		"from":                 w.address.Hex(),
		"value":                hexutil.EncodeBig(tx.Value()),
		"gas":                  hexutil.EncodeUint64(tx.Gas()),
		"maxPriorityFeePerGas": hexutil.EncodeBig(tx.GasTipCap()),
		"maxFeePerGas":         hexutil.EncodeBig(tx.GasFeeCap()),
		"nonce":                hexutil.EncodeUint64(tx.Nonce()),
		"data":                 hexutil.Encode(tx.Data()),
		"type":                 "0x2",
		"chainId":              hexutil.EncodeBig(tx.ChainId()),
	}
	if tx.To() != nil {
		txData["to"] = tx.To().Hex()
	}

	var result hexutil.Bytes
	if err := w.client.CallContext(ctx, &result, "eth_signTransaction", txData); err != nil {
		return nil, fmt.Errorf("eth_signTransaction failed for %s: %w", w.address.String(), err)
	}

	var signed types.Transaction
	if err := signed.UnmarshalBinary(result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed transaction: %w", err)
	}

	txSigner := types.LatestSignerForChainID(tx.ChainId())
	if txSigner.Hash(&signed) != txSigner.Hash(tx) {
		return nil, fmt.Errorf("web3signer returned a different transaction than requested")
	}
	sender, err := types.Sender(txSigner, &signed)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of signed transaction: %w", err)
	}
	if sender != w.address {
		return nil, fmt.Errorf("web3signer signed with %s, expected %s", sender.String(), w.address.String())
	}

	w.logger.Sugar().Debugw("Signed transaction with Web3Signer",
		"address", w.address.String(),
		"txHash", signed.Hash().Hex(),
	)
	return &signed, nil
}

func (w *Web3Signer) Close() {
	w.client.Close()
}
