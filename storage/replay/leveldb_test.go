package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"auxrewards/native/kpireward"
)

func openTestCache(t *testing.T) *LevelDBCache {
	t.Helper()
	cache, err := OpenLevelDB(filepath.Join(t.TempDir(), "replay"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func digestFor(seed byte, ts int64) kpireward.Digest {
	var founder solana.PublicKey
	founder[0] = seed
	return kpireward.KpiDigest(founder, 100, 1, ts)
}

func TestLevelDBCacheReserve(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	now := time.Unix(1_700_000_000, 0)
	digest := digestFor(1, now.Unix())

	ok, err := cache.Reserve(ctx, digest, now, now.Add(5*time.Minute))
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = cache.Reserve(ctx, digest, now.Add(time.Minute), now.Add(6*time.Minute))
	if err != nil || ok {
		t.Fatalf("duplicate reserve accepted: ok=%v err=%v", ok, err)
	}
	ok, err = cache.Reserve(ctx, digest, now.Add(5*time.Minute), now.Add(10*time.Minute))
	if err != nil || !ok {
		t.Fatalf("reserve after expiry: ok=%v err=%v", ok, err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected a single tracked digest, got %d", cache.Len())
	}
	if err := cache.Release(ctx, digest); err != nil {
		t.Fatalf("release: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("release left %d digests", cache.Len())
	}
	if err := cache.Release(ctx, digest); err != nil {
		t.Fatalf("release of unknown digest: %v", err)
	}
}

func TestLevelDBCachePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "replay")
	cache, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	digest := digestFor(2, now.Unix())
	if ok, err := cache.Reserve(ctx, digest, now, now.Add(5*time.Minute)); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if ok, err := reopened.Reserve(ctx, digest, now.Add(time.Second), now.Add(time.Hour)); err != nil || ok {
		t.Fatalf("replay accepted after restart: ok=%v err=%v", ok, err)
	}
}

func TestLevelDBCachePrune(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	now := time.Unix(1_700_000_000, 0)
	early := digestFor(1, now.Unix())
	late := digestFor(2, now.Unix())
	cache.Reserve(ctx, early, now, now.Add(time.Minute))
	cache.Reserve(ctx, late, now, now.Add(time.Hour))

	removed, err := cache.Prune(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 || cache.Len() != 1 {
		t.Fatalf("prune removed %d, remaining %d", removed, cache.Len())
	}
	if ok, _ := cache.Reserve(ctx, late, now.Add(2*time.Minute), now.Add(2*time.Hour)); ok {
		t.Fatalf("unexpired digest lost by prune")
	}
}
