package crypto

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// PublicKeyLength is the size in bytes of founder and signer identities.
const PublicKeyLength = solana.PublicKeyLength

// SignatureLength is the size in bytes of an Ed25519 claim signature.
const SignatureLength = solana.SignatureLength

// Identity is a 32-byte Ed25519 public key rendered as base58.
type Identity = solana.PublicKey

// Signature is a 64-byte Ed25519 signature.
type Signature = solana.Signature

// ParseIdentity decodes a base58 identity, rejecting empty and all-zero keys.
func ParseIdentity(raw string) (Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identity{}, fmt.Errorf("crypto: identity required")
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return Identity{}, fmt.Errorf("crypto: invalid identity %q: %w", trimmed, err)
	}
	if key.IsZero() {
		return Identity{}, fmt.Errorf("crypto: zero identity")
	}
	return key, nil
}

// MustIdentity parses a base58 identity and panics on failure. Intended for
// fixtures and constants.
func MustIdentity(raw string) Identity {
	key, err := ParseIdentity(raw)
	if err != nil {
		panic(err)
	}
	return key
}

// ParseSignature decodes a base58 Ed25519 signature.
func ParseSignature(raw string) (Signature, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Signature{}, fmt.Errorf("crypto: signature required")
	}
	sig, err := solana.SignatureFromBase58(trimmed)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto: invalid signature: %w", err)
	}
	return sig, nil
}

// --- Key Management ---

// PrivateKey wraps the 64-byte Ed25519 private key used by the off-chain
// authority to sign KPI claims.
type PrivateKey struct {
	key solana.PrivateKey
}

// GeneratePrivateKey creates a fresh Ed25519 signer key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes restores a signer key from its 64-byte encoding.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 64 {
		return nil, fmt.Errorf("crypto: private key must be 64 bytes, got %d", len(b))
	}
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(derived, b) {
		return nil, fmt.Errorf("crypto: private key does not match its public half")
	}
	return &PrivateKey{key: solana.PrivateKey(derived)}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// PubKey returns the identity matching the private key.
func (k *PrivateKey) PubKey() Identity {
	return k.key.PublicKey()
}

// Sign produces an Ed25519 signature over the supplied message.
func (k *PrivateKey) Sign(message []byte) (Signature, error) {
	if k == nil || len(k.key) == 0 {
		return Signature{}, fmt.Errorf("crypto: nil private key")
	}
	return k.key.Sign(message)
}
