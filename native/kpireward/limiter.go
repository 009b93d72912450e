package kpireward

import (
	"errors"
	"fmt"
	"math/bits"

	nativecommon "auxrewards/native/common"
)

// Admit applies amount to the founder's daily counter at time now. Days are
// floor(now / SecondsPerDay) on the UTC epoch clock; a claim on a new day
// restarts the counter. The returned state is not persisted. Counter overflow
// is reported as ErrDailyLimitExceeded.
func Admit(state RewardState, amount uint64, now int64, maxDaily uint64) (RewardState, error) {
	next, err := nativecommon.CheckQuota(dailyQuota(maxDaily), now, state.quota(), amount)
	if err != nil {
		if errors.Is(err, nativecommon.ErrQuotaExceeded) || errors.Is(err, nativecommon.ErrQuotaCounterOverflow) {
			return state, fmt.Errorf("%w: %v", ErrDailyLimitExceeded, err)
		}
		return state, err
	}
	return rewardStateFromQuota(next), nil
}

// Remaining reports how much of maxDaily the founder can still claim at now.
func Remaining(state RewardState, now int64, maxDaily uint64) uint64 {
	return dailyQuota(maxDaily).Remaining(now, state.quota())
}

// restoreAdmitted folds amount, admitted at claimedAt but never persisted, into
// the stored state. The cap is not re-checked: the claim was already admitted
// and minted. A claim from a day the stored state has moved past changes
// nothing and reports false.
func restoreAdmitted(state RewardState, amount uint64, claimedAt int64) (RewardState, bool, error) {
	claimDay := nativecommon.EpochOf(claimedAt, SecondsPerDay)
	storedDay := nativecommon.EpochOf(state.LastClaim, SecondsPerDay)
	switch {
	case storedDay > claimDay:
		return state, false, nil
	case storedDay < claimDay:
		return RewardState{LastClaim: claimedAt, DailyClaimed: amount}, true, nil
	}
	used, carry := bits.Add64(state.DailyClaimed, amount, 0)
	if carry != 0 {
		return state, false, fmt.Errorf("%w: %v", ErrDailyLimitExceeded, nativecommon.ErrQuotaCounterOverflow)
	}
	return RewardState{LastClaim: max(state.LastClaim, claimedAt), DailyClaimed: used}, true, nil
}
