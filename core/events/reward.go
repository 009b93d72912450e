package events

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"auxrewards/core/types"
)

const (
	// TypeRewardClaimed is emitted whenever a KPI claim completes issuance.
	TypeRewardClaimed = "kpireward.claimed"
	// TypeRewardPartial is emitted when issuance stopped after the mint succeeded.
	TypeRewardPartial = "kpireward.partial"
)

// RewardClaimed reports the net amount credited to a founder for a KPI claim.
// Timestamp is the processing time, never the client supplied claim time.
type RewardClaimed struct {
	Founder   solana.PublicKey
	Amount    uint64
	Burned    uint64
	KpiType   uint8
	Timestamp int64
	Digest    [32]byte
}

func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// Event renders the structured claim event for downstream consumers.
func (e RewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardClaimed,
		Attributes: map[string]string{
			"founder":   e.Founder.String(),
			"amount":    strconv.FormatUint(e.Amount, 10),
			"burned":    strconv.FormatUint(e.Burned, 10),
			"kpiType":   strconv.FormatUint(uint64(e.KpiType), 10),
			"timestamp": strconv.FormatInt(e.Timestamp, 10),
			"digest":    hexDigest(e.Digest),
		},
	}
}

// RewardPartial reports an issuance that minted tokens but could not finish.
type RewardPartial struct {
	RecordID  string
	Founder   solana.PublicKey
	Amount    uint64
	Burn      uint64
	Stage     string
	Reason    string
	Timestamp int64
}

func (RewardPartial) EventType() string { return TypeRewardPartial }

// Event renders the partial issuance notification.
func (e RewardPartial) Event() *types.Event {
	attrs := map[string]string{
		"recordId":  e.RecordID,
		"founder":   e.Founder.String(),
		"amount":    strconv.FormatUint(e.Amount, 10),
		"burn":      strconv.FormatUint(e.Burn, 10),
		"stage":     e.Stage,
		"timestamp": strconv.FormatInt(e.Timestamp, 10),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeRewardPartial, Attributes: attrs}
}
