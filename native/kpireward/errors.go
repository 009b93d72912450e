package kpireward

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	nativecommon "auxrewards/native/common"
)

var (
	ErrInvalidSignature   = errors.New("kpireward: invalid signature")
	ErrExcessiveReward    = errors.New("kpireward: reward amount exceeds per-claim maximum")
	ErrDailyLimitExceeded = errors.New("kpireward: daily reward limit exceeded")
	ErrStaleData          = errors.New("kpireward: claim timestamp outside freshness window")
	ErrLedgerOverflow     = errors.New("kpireward: ledger total overflow")
	ErrClaimReplayed      = errors.New("kpireward: claim already processed")
	ErrInvalidFounder     = errors.New("kpireward: founder identity required")
	ErrMintFailed         = errors.New("kpireward: mint failed")

	ErrProgramNotInitialized = errors.New("kpireward: program not initialised")
	ErrProgramInitialized    = errors.New("kpireward: program already initialised")

	// ErrPartialIssuance marks failures that happened after tokens were minted.
	// Such claims must not be resubmitted; they are completed by reconciliation.
	ErrPartialIssuance = errors.New("kpireward: partial issuance")

	// ErrInvalidMintAuthority is the token ledger's authority mismatch.
	ErrInvalidMintAuthority = nativecommon.ErrInvalidMintAuthority
	// ErrModulePaused is returned while the module is paused.
	ErrModulePaused = nativecommon.ErrModulePaused
)

// Stage names the step at which a partial issuance stopped.
type Stage string

const (
	// StageState means persisting the founder's daily counters failed.
	StageState Stage = "state"
	// StageBurn means the burn following a successful mint failed.
	StageBurn Stage = "burn"
	// StageLedger means recording the program totals failed.
	StageLedger Stage = "ledger"
)

// PartialIssuance describes a claim whose mint succeeded but whose remaining
// steps did not. Records are handed to a Reconciler.
type PartialIssuance struct {
	ID      string           `json:"id"`
	Founder solana.PublicKey `json:"founder"`
	Digest  Digest           `json:"digest"`
	Amount  uint64           `json:"amount"`
	Burn    uint64           `json:"burn"`
	// StateApplied, BurnApplied and LedgerApplied checkpoint the steps
	// completed so far, by the claim or by an earlier reconcile attempt.
	StateApplied  bool       `json:"stateApplied"`
	BurnApplied   bool       `json:"burnApplied"`
	LedgerApplied bool       `json:"ledgerApplied"`
	KpiType       uint8      `json:"kpiType"`
	Stage         Stage      `json:"stage"`
	Cause         string     `json:"cause"`
	CreatedAt     time.Time  `json:"createdAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// Resolved reports whether reconciliation completed the record.
func (p PartialIssuance) Resolved() bool { return p.ResolvedAt != nil }

// PartialIssuanceError is returned when issuance stopped after the mint.
type PartialIssuanceError struct {
	Record PartialIssuance
	Err    error
	// JournalErr is set when the record could not be handed to the reconciler.
	JournalErr error
}

func (e *PartialIssuanceError) Error() string {
	msg := fmt.Sprintf("kpireward: partial issuance at %s stage (record %s): %v", e.Record.Stage, e.Record.ID, e.Err)
	if e.JournalErr != nil {
		msg += fmt.Sprintf(" (journal: %v)", e.JournalErr)
	}
	return msg
}

func (e *PartialIssuanceError) Unwrap() []error {
	return []error{ErrPartialIssuance, e.Err}
}

// IsRetryable reports whether a failed claim left no side effects, so the same
// claim may be submitted again. Partial issuance is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPartialIssuance) {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrExcessiveReward),
		errors.Is(err, ErrStaleData),
		errors.Is(err, ErrClaimReplayed),
		errors.Is(err, ErrInvalidFounder),
		errors.Is(err, ErrInvalidMintAuthority):
		return false
	}
	return true
}

// ErrorCode maps an issuance error to a stable machine readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPartialIssuance):
		return "partial_issuance"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExcessiveReward):
		return "excessive_reward"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrStaleData):
		return "stale_data"
	case errors.Is(err, ErrInvalidMintAuthority):
		return "invalid_mint_authority"
	case errors.Is(err, ErrLedgerOverflow):
		return "ledger_overflow"
	case errors.Is(err, ErrClaimReplayed):
		return "claim_replayed"
	case errors.Is(err, ErrInvalidFounder):
		return "invalid_founder"
	case errors.Is(err, ErrModulePaused):
		return "module_paused"
	case errors.Is(err, ErrProgramNotInitialized):
		return "program_not_initialised"
	case errors.Is(err, ErrMintFailed):
		return "mint_failed"
	default:
		return "internal"
	}
}
