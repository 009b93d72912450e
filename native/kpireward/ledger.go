package kpireward

import (
	"fmt"
	"math/bits"
	"sync"
)

// RewardLedger maintains the program-wide issuance totals. Updates are
// serialised and written through to the ProgramStore before they become
// visible.
type RewardLedger struct {
	mu      sync.Mutex
	store   *ProgramStore
	program ProgramState
}

// NewRewardLedger loads the current totals from store.
func NewRewardLedger(store *ProgramStore) (*RewardLedger, error) {
	program, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &RewardLedger{store: store, program: *program}, nil
}

// Snapshot returns a copy of the current program state.
func (l *RewardLedger) Snapshot() ProgramState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.program
}

// CanRecord reports whether Record(amount, burn) would succeed against the
// current totals.
func (l *RewardLedger) CanRecord(amount, burn uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := applyTotals(l.program, amount, burn)
	return err
}

// Record adds amount-burn to the distributed total and burn to the burned
// total. Overflow leaves the totals untouched.
func (l *RewardLedger) Record(amount, burn uint64) (ProgramState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := applyTotals(l.program, amount, burn)
	if err != nil {
		return l.program, err
	}
	if err := l.store.Save(&next); err != nil {
		return l.program, err
	}
	l.program = next
	return next, nil
}

func applyTotals(program ProgramState, amount, burn uint64) (ProgramState, error) {
	if burn > amount {
		return program, fmt.Errorf("kpireward: burn %d exceeds amount %d", burn, amount)
	}
	distributed, carry := bits.Add64(program.TotalRewardsDistributed, amount-burn, 0)
	if carry != 0 {
		return program, ErrLedgerOverflow
	}
	burned, carry := bits.Add64(program.TotalTokensBurned, burn, 0)
	if carry != 0 {
		return program, ErrLedgerOverflow
	}
	program.TotalRewardsDistributed = distributed
	program.TotalTokensBurned = burned
	return program, nil
}
