package kpireward

import nativecommon "auxrewards/native/common"

// ModuleName identifies the issuance module for pause guards, quota records
// and metrics.
const ModuleName = "kpireward"

// Numeric contracts of the issuance path. Never read from configuration.
const (
	// MaxRewardAmount caps a single claim.
	MaxRewardAmount uint64 = 1000
	// MaxDailyRewards caps the cumulative amount a founder may claim per UTC day.
	MaxDailyRewards uint64 = 5000
	// MaxClaimAge is the freshness window for claim timestamps, in seconds.
	MaxClaimAge int64 = 300
	// BurnDivisor retires amount/BurnDivisor (1%) of every issuance.
	BurnDivisor uint64 = 100
	// SecondsPerDay defines calendar-day buckets on the epoch clock.
	SecondsPerDay int64 = 86400
)

// BurnAmount returns the portion of amount retired on issuance. Integer
// division truncates, so claims below BurnDivisor burn nothing.
func BurnAmount(amount uint64) uint64 {
	return amount / BurnDivisor
}

func dailyQuota(maxDaily uint64) nativecommon.Quota {
	return nativecommon.Quota{MaxPerEpoch: maxDaily, EpochSeconds: SecondsPerDay}
}
