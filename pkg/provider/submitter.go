package provider

import (
	"context"
	"time"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	goEthereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type SubmitterConfig struct {
	// Timeout bounds the whole submission, the send and the wait for inclusion
	Timeout time.Duration

	// PollInterval is the minimum spacing between receipt queries
	PollInterval time.Duration
}

// Submitter sends a transaction exactly once and waits for its receipt.
type Submitter struct {
	provider IChainProvider
	config   *SubmitterConfig
	logger   *zap.Logger
}

func NewSubmitter(provider IChainProvider, cfg *SubmitterConfig, logger *zap.Logger) *Submitter {
	c := &SubmitterConfig{
		Timeout:      config.DefaultSubmissionTimeout,
		PollInterval: config.DefaultReceiptPollInterval,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if cfg.PollInterval > 0 {
			c.PollInterval = cfg.PollInterval
		}
	}
	return &Submitter{
		provider: provider,
		config:   c,
		logger:   logger,
	}
}

// SubmitEnvelope encodes env and submits it.
func (s *Submitter) SubmitEnvelope(ctx context.Context, env envelope.Envelope) (*types.Receipt, error) {
	raw, err := env.MarshalBinary()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s transaction", env.Type().String())
	}
	return s.Submit(ctx, raw)
}

// Submit sends raw and waits for inclusion. Errors are a *SubmissionError
// when the outcome is a definite failure and an *AmbiguousOutcomeError when
// the submission timeout or ctx ended it first. The transaction is never
// resent.
func (s *Submitter) Submit(ctx context.Context, raw []byte) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	txHash, err := s.provider.SendRawTransaction(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AmbiguousOutcomeError{Err: err}
		}
		s.logger.Sugar().Errorw("Transaction rejected", zap.Error(err))
		return nil, &SubmissionError{Reason: err.Error()}
	}

	s.logger.Sugar().Infow("Transaction sent", zap.String("txHash", txHash.Hex()))

	receipt, err := s.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		s.logger.Sugar().Errorw("Transaction reverted",
			zap.String("txHash", txHash.Hex()),
			zap.Uint64("gasUsed", receipt.GasUsed),
		)
		return receipt, &SubmissionError{Reason: "transaction reverted", TxHash: txHash, Receipt: receipt}
	}

	s.logger.Sugar().Infow("Transaction included",
		zap.String("txHash", txHash.Hex()),
		zap.Uint64("gasUsed", receipt.GasUsed),
		zap.String("blockNumber", receipt.BlockNumber.String()),
	)
	return receipt, nil
}

func (s *Submitter) waitForReceipt(waitCtx context.Context, txHash common.Hash) (*types.Receipt, error) {
	limiter := rate.NewLimiter(rate.Every(s.config.PollInterval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return nil, &AmbiguousOutcomeError{TxHash: txHash, Err: err}
		}

		receipt, err := s.provider.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if waitCtx.Err() != nil {
			return nil, &AmbiguousOutcomeError{TxHash: txHash, Err: waitCtx.Err()}
		}
		if err != nil && !errors.Is(err, goEthereum.NotFound) {
			s.logger.Sugar().Warnw("Receipt query failed, polling again",
				zap.String("txHash", txHash.Hex()),
				zap.Error(err),
			)
		}
	}
}
