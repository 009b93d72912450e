package replay

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"auxrewards/native/kpireward"
)

const (
	digestKeyPrefix = "digest:"
	expiryKeyPrefix = "expiry:"
)

// LevelDBCache persists reserved claim digests so replays are rejected across
// restarts. Each digest is indexed by its expiry for pruning.
type LevelDBCache struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB replay cache at path.
func OpenLevelDB(path string) (*LevelDBCache, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("replay: leveldb path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("replay: resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("replay: open leveldb: %w", err)
	}
	return &LevelDBCache{db: db}, nil
}

func (c *LevelDBCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Reserve records digest until expiresAt unless an unexpired reservation
// already exists.
func (c *LevelDBCache) Reserve(ctx context.Context, digest kpireward.Digest, now, expiresAt time.Time) (bool, error) {
	if c == nil || c.db == nil {
		return false, fmt.Errorf("replay: leveldb cache not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hexDigest := hex.EncodeToString(digest[:])
	key := []byte(digestKeyPrefix + hexDigest)
	batch := new(leveldb.Batch)
	existing, err := c.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("replay: load digest: %w", err)
	default:
		previous := int64(binary.BigEndian.Uint64(existing))
		if previous > now.Unix() {
			return false, nil
		}
		batch.Delete([]byte(expiryKey(previous, hexDigest)))
	}
	expiry := expiresAt.Unix()
	batch.Put(key, encodeUnix(expiry))
	batch.Put([]byte(expiryKey(expiry, hexDigest)), nil)
	if err := c.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("replay: record digest: %w", err)
	}
	return true, nil
}

// Release removes a reservation.
func (c *LevelDBCache) Release(ctx context.Context, digest kpireward.Digest) error {
	if c == nil || c.db == nil {
		return fmt.Errorf("replay: leveldb cache not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hexDigest := hex.EncodeToString(digest[:])
	key := []byte(digestKeyPrefix + hexDigest)
	existing, err := c.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay: load digest: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Delete([]byte(expiryKey(int64(binary.BigEndian.Uint64(existing)), hexDigest)))
	if err := c.db.Write(batch, nil); err != nil {
		return fmt.Errorf("replay: release digest: %w", err)
	}
	return nil
}

// Prune deletes reservations that expired at or before cutoff.
func (c *LevelDBCache) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if c == nil || c.db == nil {
		return 0, fmt.Errorf("replay: leveldb cache not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Keys sort by zero padded expiry, so everything before the bound is due.
	bound := []byte(expiryKey(cutoff.Unix()+1, ""))
	iter := c.db.NewIterator(util.BytesPrefix([]byte(expiryKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if bytes.Compare(iter.Key(), bound) >= 0 {
			break
		}
		hexDigest, _, ok := parseExpiryKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(digestKeyPrefix + hexDigest))
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("replay: iterate expiries: %w", err)
	}
	if batch.Len() > 0 {
		if err := c.db.Write(batch, nil); err != nil {
			return 0, fmt.Errorf("replay: prune digests: %w", err)
		}
	}
	return removed, nil
}

// Len counts tracked digests.
func (c *LevelDBCache) Len() int {
	if c == nil || c.db == nil {
		return 0
	}
	iter := c.db.NewIterator(util.BytesPrefix([]byte(digestKeyPrefix)), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n
}

func expiryKey(unix int64, hexDigest string) string {
	return fmt.Sprintf("%s%020d:%s", expiryKeyPrefix, unix, hexDigest)
}

func parseExpiryKey(key []byte) (string, int64, bool) {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], unix, true
}

func encodeUnix(unix int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(unix))
	return buf
}
