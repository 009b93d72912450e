package kpireward

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	nativecommon "auxrewards/native/common"
)

// Digest is the Keccak-256 fingerprint of a canonicalised claim.
type Digest [32]byte

// Hex renders the digest as 0x-prefixed lowercase hex.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	raw := strings.TrimPrefix(strings.TrimSpace(string(text)), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("kpireward: decode digest: %w", err)
	}
	if len(decoded) != len(d) {
		return fmt.Errorf("kpireward: digest must be %d bytes", len(d))
	}
	copy(d[:], decoded)
	return nil
}

// ProgramState is the singleton issuance record. Totals only ever grow.
type ProgramState struct {
	Authority               solana.PublicKey `json:"authority"`
	SignerPubkey            solana.PublicKey `json:"signerPubkey"`
	TotalRewardsDistributed uint64           `json:"totalRewardsDistributed"`
	TotalTokensBurned       uint64           `json:"totalTokensBurned"`
}

// RewardState tracks one founder's claims within the current UTC day.
// DailyClaimed only covers claims made on the calendar day of LastClaim.
type RewardState struct {
	LastClaim    int64  `json:"lastClaim"`
	DailyClaimed uint64 `json:"dailyClaimed"`
}

func (s RewardState) quota() nativecommon.QuotaNow {
	return nativecommon.QuotaNow{LastSeen: s.LastClaim, Used: s.DailyClaimed}
}

func rewardStateFromQuota(q nativecommon.QuotaNow) RewardState {
	return RewardState{LastClaim: q.LastSeen, DailyClaimed: q.Used}
}

// ClaimRequest is a signed KPI claim submitted for issuance. It is never
// persisted.
type ClaimRequest struct {
	Founder   solana.PublicKey
	Amount    uint64
	KpiType   uint8
	Timestamp int64
	Signature solana.Signature
}

// Digest canonicalises the claim tuple.
func (r ClaimRequest) Digest() Digest {
	return KpiDigest(r.Founder, r.Amount, r.KpiType, r.Timestamp)
}

// IssuanceEvent is the completion record returned for an issued claim.
// Timestamp is the engine's clock at processing time.
type IssuanceEvent struct {
	Founder   solana.PublicKey `json:"founder"`
	NetAmount uint64           `json:"netAmount"`
	Burned    uint64           `json:"burned"`
	KpiType   uint8            `json:"kpiType"`
	Timestamp int64            `json:"timestamp"`
	Digest    Digest           `json:"-"`
}

// TokenLedger is the external mint/burn capability. Implementations report an
// authority mismatch by wrapping ErrInvalidMintAuthority.
type TokenLedger interface {
	Mint(ctx context.Context, account solana.PublicKey, amount uint64) error
	Burn(ctx context.Context, account solana.PublicKey, amount uint64) error
}

// AtomicIssuer is implemented by token ledgers able to apply a mint and the
// matching burn as one operation. The engine prefers it when available.
type AtomicIssuer interface {
	MintAndBurn(ctx context.Context, account solana.PublicKey, mintAmount, burnAmount uint64) error
}

// ReplayCache remembers claim digests until their freshness window closes.
type ReplayCache interface {
	// Reserve records digest until expiresAt. It returns false when the digest
	// is already held by an unexpired reservation.
	Reserve(ctx context.Context, digest Digest, now, expiresAt time.Time) (bool, error)
	// Release drops a reservation whose issuance never happened.
	Release(ctx context.Context, digest Digest) error
}

// StateStore is the key/value surface used for program and founder records.
type StateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}
