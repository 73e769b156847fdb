package cosigner

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/envelope"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SignedTransaction is a frozen call together with the digest both owners
// signed and their combined authorization.
type SignedTransaction struct {
	Tx      *envelope.EIP712Tx
	Digest  common.Hash
	Payload AuthorizationPayload
}

// CoSigner collects a two-of-two authorization for calls made by a multisig
// account. Signer order is fixed at construction: index 0 is owner 1.
type CoSigner struct {
	signers [numOwners]signer.ISigner
	logger  *zap.Logger
}

func NewCoSigner(signers []signer.ISigner, logger *zap.Logger) (*CoSigner, error) {
	if len(signers) != numOwners {
		return nil, fmt.Errorf("exactly %d signers are required, got %d", numOwners, len(signers))
	}
	for i, s := range signers {
		if s == nil {
			return nil, fmt.Errorf("%s signer is nil", Role(i).String())
		}
	}
	if signers[0].Address() == signers[1].Address() {
		return nil, fmt.Errorf("owners must be distinct, both are %s", signers[0].Address().String())
	}

	return &CoSigner{
		signers: [numOwners]signer.ISigner{signers[0], signers[1]},
		logger:  logger,
	}, nil
}

func (c *CoSigner) Owners() (common.Address, common.Address) {
	return c.signers[0].Address(), c.signers[1].Address()
}

func (c *CoSigner) Verifier() ReferenceVerifier {
	owner1, owner2 := c.Owners()
	return ReferenceVerifier{Owner1: owner1, Owner2: owner2}
}

// Sign freezes tx, asks both owners to sign its digest concurrently and
// assembles the payload in role order. tx itself is not modified.
func (c *CoSigner) Sign(ctx context.Context, tx *envelope.EIP712Tx) (*SignedTransaction, error) {
	frozen := tx.Copy()
	frozen.Meta.CustomSignature = nil

	digest, err := frozen.SigningHash()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute signing hash")
	}

	c.logger.Sugar().Infow("Collecting owner signatures",
		zap.String("account", frozen.From.String()),
		zap.String("to", frozen.To.String()),
		zap.Uint64("nonce", frozen.Nonce),
		zap.String("digest", digest.Hex()),
	)

	var sigs [numOwners][]byte
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.signers {
		role := Role(i)
		s := c.signers[i]
		g.Go(func() error {
			sig, err := c.signOne(gctx, role, s, frozen, digest)
			if err != nil {
				return err
			}
			sigs[role] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload, err := NewAuthorizationPayload(sigs[RoleOwner1], sigs[RoleOwner2])
	if err != nil {
		return nil, err
	}

	return &SignedTransaction{
		Tx:      frozen,
		Digest:  digest,
		Payload: payload,
	}, nil
}

func (c *CoSigner) signOne(ctx context.Context, role Role, s signer.ISigner, tx *envelope.EIP712Tx, digest common.Hash) ([]byte, error) {
	wrap := func(err error) error {
		return &SigningError{Role: role, Signer: s.Address(), Err: err}
	}

	// each signer gets its own typed data so remote implementations can
	// marshal it without sharing state
	typedData, err := tx.TypedData()
	if err != nil {
		return nil, wrap(err)
	}

	sig, err := s.SignTypedData(ctx, typedData, digest)
	if err != nil {
		return nil, wrap(err)
	}
	if len(sig) != signer.SignatureLength {
		return nil, wrap(fmt.Errorf("invalid signature length: expected %d, got %d", signer.SignatureLength, len(sig)))
	}

	sig = common.CopyBytes(sig)
	if sig[64] < 27 {
		sig[64] += 27
	}

	ok, err := signer.VerifySignature(digest, sig, s.Address())
	if err != nil {
		return nil, wrap(err)
	}
	if !ok {
		return nil, wrap(fmt.Errorf("signature does not recover to %s", s.Address().String()))
	}

	c.logger.Sugar().Debugw("Owner signed",
		"role", role.String(),
		"signer", s.Address().String(),
	)
	return sig, nil
}

// Assemble attaches the payload to the signed call and returns the 0x71 wire
// encoding. It refuses when the call no longer hashes to the signed digest.
func Assemble(signed *SignedTransaction) ([]byte, error) {
	if signed == nil || signed.Tx == nil {
		return nil, fmt.Errorf("signed transaction is required")
	}
	if len(signed.Payload) != PayloadLength {
		return nil, fmt.Errorf("invalid payload length: expected %d, got %d", PayloadLength, len(signed.Payload))
	}

	tx := signed.Tx.Copy()
	tx.Meta.CustomSignature = nil

	digest, err := tx.SigningHash()
	if err != nil {
		return nil, errors.Wrap(err, "failed to recompute signing hash")
	}
	if digest != signed.Digest {
		return nil, errors.Wrapf(ErrStaleSignature, "signed %s, now %s", signed.Digest.Hex(), digest.Hex())
	}

	tx.Meta.CustomSignature = common.CopyBytes(signed.Payload)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode transaction")
	}
	return raw, nil
}
