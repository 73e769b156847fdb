package provider

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	// ErrProviderQueryFailed is matched by every *ProviderQueryError
	ErrProviderQueryFailed = errors.New("provider query failed")

	// ErrSubmissionFailed is matched by every *SubmissionError
	ErrSubmissionFailed = errors.New("transaction submission failed")

	// ErrAmbiguousSubmissionOutcome is matched by every *AmbiguousOutcomeError
	ErrAmbiguousSubmissionOutcome = errors.New("transaction may or may not have been included")
)

// Provider query operations reported in ProviderQueryError.Op
const (
	OpEstimateGas = "estimateGas"
	OpGasPrice    = "gasPrice"
	OpChainID     = "chainId"
	OpNonce       = "nonce"
	OpBalance     = "balance"
	OpCall        = "call"
)

type ProviderQueryError struct {
	Op  string
	Err error
}

func (e *ProviderQueryError) Error() string {
	return fmt.Sprintf("provider query %s failed: %v", e.Op, e.Err)
}

func (e *ProviderQueryError) Is(target error) bool {
	return target == ErrProviderQueryFailed
}

func (e *ProviderQueryError) Unwrap() error {
	return e.Err
}

func queryError(op string, err error) error {
	return &ProviderQueryError{Op: op, Err: err}
}

var insufficientFundsMarkers = []string{
	"insufficient funds",
	"not enough funds",
	"not enough balance",
}

// SubmissionError is a definite rejection: either the node refused the
// transaction or it was included and reverted. Reason is the node's message.
type SubmissionError struct {
	Reason  string
	TxHash  common.Hash
	Receipt *types.Receipt
}

func (e *SubmissionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s: %s (tx %s)", ErrSubmissionFailed.Error(), e.Reason, e.TxHash.Hex())
	}
	return fmt.Sprintf("%s: %s", ErrSubmissionFailed.Error(), e.Reason)
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

// IsInsufficientFunds reports whether the sender could not cover fee or value.
func (e *SubmissionError) IsInsufficientFunds() bool {
	reason := strings.ToLower(e.Reason)
	for _, marker := range insufficientFundsMarkers {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	return false
}

// AmbiguousOutcomeError means the wait for inclusion ended before a receipt
// was seen. The transaction may still be included later.
type AmbiguousOutcomeError struct {
	TxHash common.Hash
	Err    error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("%s (tx %s): %v", ErrAmbiguousSubmissionOutcome.Error(), e.TxHash.Hex(), e.Err)
}

func (e *AmbiguousOutcomeError) Is(target error) bool {
	return target == ErrAmbiguousSubmissionOutcome
}

func (e *AmbiguousOutcomeError) Unwrap() error {
	return e.Err
}
