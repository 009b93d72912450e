package quotas

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	nativecommon "auxrewards/native/common"
)

type memoryState struct {
	data map[string][]byte
	fail error
}

func newMemoryState() *memoryState {
	return &memoryState{data: make(map[string][]byte)}
}

func (m *memoryState) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.data[string(key)]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memoryState) KVPut(key []byte, value interface{}) error {
	if m.fail != nil {
		return m.fail
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memoryState) KVDelete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func TestQuotaStoreRoundTripAndRollover(t *testing.T) {
	state := newMemoryState()
	store := NewStore(state)

	addr := make([]byte, 32)
	addr[0] = 0xAA
	quota := nativecommon.Quota{MaxPerEpoch: 5000, EpochSeconds: 86400}

	if _, ok, err := store.Load("kpireward", addr); err != nil || ok {
		t.Fatalf("expected empty record, got ok=%v err=%v", ok, err)
	}

	now := int64(1_700_000_000)
	next, err := nativecommon.CheckQuota(quota, now, nativecommon.QuotaNow{}, 4000)
	if err != nil {
		t.Fatalf("check quota: %v", err)
	}
	if err := store.Save("KPIReward ", addr, next); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := store.Load("kpireward", addr)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded != next {
		t.Fatalf("unexpected counters: %+v want %+v", loaded, next)
	}

	if _, err := nativecommon.CheckQuota(quota, now+10, loaded, 1001); !errors.Is(err, nativecommon.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	rollover, err := nativecommon.CheckQuota(quota, now+86400, loaded, 1001)
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}
	if rollover.Used != 1001 {
		t.Fatalf("unexpected counters after rollover: %+v", rollover)
	}

	if err := store.Delete("kpireward", addr); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load("kpireward", addr); ok {
		t.Fatalf("expected record to be deleted")
	}
}

func TestQuotaStoreNegativeTimestamp(t *testing.T) {
	store := NewStore(newMemoryState())
	addr := []byte{0x01}
	counters := nativecommon.QuotaNow{LastSeen: -42, Used: 7}
	if err := store.Save("kpireward", addr, counters); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, _, err := store.Load("kpireward", addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != counters {
		t.Fatalf("negative timestamp did not survive encoding: %+v", loaded)
	}
}

func TestQuotaStoreErrors(t *testing.T) {
	var nilStore *Store
	if _, _, err := nilStore.Load("kpireward", []byte{1}); err == nil {
		t.Fatalf("expected error for nil store")
	}
	state := newMemoryState()
	store := NewStore(state)
	if err := store.Save("kpireward", nil, nativecommon.QuotaNow{}); err == nil {
		t.Fatalf("expected address error")
	}
	state.fail = errors.New("disk full")
	if err := store.Save("kpireward", []byte{1}, nativecommon.QuotaNow{}); err == nil {
		t.Fatalf("expected persist error")
	}
}
