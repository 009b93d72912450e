package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrQuotaCounterOverflow = errors.New("quota counter overflow")
)

// QuotaNow captures the usage counter of one address together with the time
// of the last admitted request.
type QuotaNow struct {
	LastSeen int64
	Used     uint64
}

// Quota bounds the cumulative amount an address may consume per epoch.
// Epochs are floor(ts / EpochSeconds) on the epoch clock, not local time.
type Quota struct {
	MaxPerEpoch  uint64
	EpochSeconds int64
}

// EpochOf returns floor(ts / epochSeconds). Timestamps before the Unix epoch
// round towards negative infinity so that every epoch spans the same length.
func EpochOf(ts, epochSeconds int64) int64 {
	if epochSeconds <= 0 {
		return 0
	}
	epoch := ts / epochSeconds
	if ts%epochSeconds != 0 && ts < 0 {
		epoch--
	}
	return epoch
}

// SameEpoch reports whether both timestamps fall into the same epoch.
func (q Quota) SameEpoch(a, b int64) bool {
	return EpochOf(a, q.EpochSeconds) == EpochOf(b, q.EpochSeconds)
}

// CheckQuota verifies whether adding usage at time now fits within the quota.
// When prev belongs to an earlier epoch the counter restarts from zero. The
// returned QuotaNow reflects the updated counters when the quota is not
// exceeded; on error prev is returned unchanged.
func CheckQuota(q Quota, now int64, prev QuotaNow, add uint64) (QuotaNow, error) {
	next := QuotaNow{LastSeen: now, Used: prev.Used}
	if !q.SameEpoch(prev.LastSeen, now) {
		next.Used = 0
	}

	if next.Used > math.MaxUint64-add {
		return prev, ErrQuotaCounterOverflow
	}
	next.Used += add
	if q.MaxPerEpoch > 0 && next.Used > q.MaxPerEpoch {
		return prev, ErrQuotaExceeded
	}
	return next, nil
}

// Remaining reports how much of the quota is still available at time now.
func (q Quota) Remaining(now int64, current QuotaNow) uint64 {
	if q.MaxPerEpoch == 0 {
		return math.MaxUint64
	}
	used := current.Used
	if !q.SameEpoch(current.LastSeen, now) {
		used = 0
	}
	if used >= q.MaxPerEpoch {
		return 0
	}
	return q.MaxPerEpoch - used
}
