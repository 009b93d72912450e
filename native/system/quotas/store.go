package quotas

import (
	"fmt"

	nativecommon "auxrewards/native/common"
)

// counterRecord is the persisted form of a QuotaNow. RLP has no signed
// integers, so LastSeen is stored as its two's complement bit pattern.
type counterRecord struct {
	LastSeen uint64
	Used     uint64
}

type StoreState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Store persists per-address usage counters, one record per module and
// address. Records are created lazily by the first Save.
type Store struct {
	state StoreState
}

func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("quota store not initialised")
	}
	return s.state, nil
}

// Load returns the counters for addr. Missing records yield the zero value
// and false.
func (s *Store) Load(module string, addr []byte) (nativecommon.QuotaNow, bool, error) {
	state, err := s.withState()
	if err != nil {
		return nativecommon.QuotaNow{}, false, err
	}
	if len(addr) == 0 {
		return nativecommon.QuotaNow{}, false, fmt.Errorf("quota: address required")
	}
	var stored counterRecord
	ok, err := state.KVGet(counterKey(module, addr), &stored)
	if err != nil {
		return nativecommon.QuotaNow{}, false, fmt.Errorf("quota: load counters: %w", err)
	}
	if !ok {
		return nativecommon.QuotaNow{}, false, nil
	}
	return nativecommon.QuotaNow{LastSeen: int64(stored.LastSeen), Used: stored.Used}, true, nil
}

func (s *Store) Save(module string, addr []byte, counters nativecommon.QuotaNow) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if len(addr) == 0 {
		return fmt.Errorf("quota: address required")
	}
	record := counterRecord{LastSeen: uint64(counters.LastSeen), Used: counters.Used}
	if err := state.KVPut(counterKey(module, addr), record); err != nil {
		return fmt.Errorf("quota: persist counters: %w", err)
	}
	return nil
}

func (s *Store) Delete(module string, addr []byte) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if len(addr) == 0 {
		return fmt.Errorf("quota: address required")
	}
	if err := state.KVDelete(counterKey(module, addr)); err != nil {
		return fmt.Errorf("quota: delete counters: %w", err)
	}
	return nil
}
