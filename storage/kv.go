package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KV layers RLP encoded records on top of a Database. It satisfies the state
// interfaces consumed by the quota and program stores.
type KV struct {
	db Database
}

// NewKV wraps the supplied database.
func NewKV(db Database) *KV {
	return &KV{db: db}
}

// KVGet decodes the record stored under key into out. The boolean reports
// whether the key existed.
func (kv *KV) KVGet(key []byte, out interface{}) (bool, error) {
	if kv == nil || kv.db == nil {
		return false, fmt.Errorf("storage: kv not initialised")
	}
	raw, err := kv.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and stores it under key.
func (kv *KV) KVPut(key []byte, value interface{}) error {
	if kv == nil || kv.db == nil {
		return fmt.Errorf("storage: kv not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return kv.db.Put(key, encoded)
}

// KVDelete removes the record stored under key.
func (kv *KV) KVDelete(key []byte) error {
	if kv == nil || kv.db == nil {
		return fmt.Errorf("storage: kv not initialised")
	}
	return kv.db.Delete(key)
}
