package kpireward

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SignatureVerifier checks an Ed25519 signature over a message.
type SignatureVerifier interface {
	Verify(signer solana.PublicKey, message []byte, signature solana.Signature) error
}

// Ed25519Verifier verifies signatures with the standard Ed25519 primitive.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(signer solana.PublicKey, message []byte, signature solana.Signature) error {
	if signer.IsZero() {
		return fmt.Errorf("%w: signer key not configured", ErrInvalidSignature)
	}
	if !signature.Verify(signer, message) {
		return ErrInvalidSignature
	}
	return nil
}

// verifiedClaim is only produced by verifyClaim. Issuance steps take it as
// proof that the signature over digest was checked against signer.
type verifiedClaim struct {
	signer solana.PublicKey
	digest Digest
}

func verifyClaim(v SignatureVerifier, signer solana.PublicKey, digest Digest, signature solana.Signature) (verifiedClaim, error) {
	if v == nil {
		return verifiedClaim{}, fmt.Errorf("%w: verifier not configured", ErrInvalidSignature)
	}
	if err := v.Verify(signer, digest[:], signature); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return verifiedClaim{}, err
		}
		return verifiedClaim{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return verifiedClaim{signer: signer, digest: digest}, nil
}

func (c verifiedClaim) covers(signer solana.PublicKey, digest Digest) bool {
	return !c.signer.IsZero() && c.signer.Equals(signer) && c.digest == digest
}
