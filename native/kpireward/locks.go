package kpireward

import (
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/puzpuzpuz/xsync/v4"
)

// founderLocks hands out one mutex per founder. Entries are never removed; a
// founder's mutex lives as long as its RewardState record.
type founderLocks struct {
	locks *xsync.Map[solana.PublicKey, *sync.Mutex]
}

func newFounderLocks() *founderLocks {
	return &founderLocks{locks: xsync.NewMap[solana.PublicKey, *sync.Mutex]()}
}

func (f *founderLocks) lock(founder solana.PublicKey) func() {
	mu, _ := f.locks.LoadOrStore(founder, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

func (f *founderLocks) size() int {
	return f.locks.Size()
}
