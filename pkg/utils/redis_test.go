package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTryLock_SingleOwner(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	ok, err := TryLock(ctx, rdb, "lock:sweep", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock, ok=%v err=%v", ok, err)
	}
	ok, err = TryLock(ctx, rdb, "lock:sweep", "b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected second owner to be refused")
	}
}

func TestUnlock_OnlyOwnerReleases(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	if ok, _ := TryLock(ctx, rdb, "k", "a", time.Minute); !ok {
		t.Fatalf("expected lock")
	}
	released, err := Unlock(ctx, rdb, "k", "b")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if released {
		t.Fatalf("non-owner must not release")
	}
	released, err = Unlock(ctx, rdb, "k", "a")
	if err != nil || !released {
		t.Fatalf("expected owner release, released=%v err=%v", released, err)
	}
	if ok, _ := TryLock(ctx, rdb, "k", "b", time.Minute); !ok {
		t.Fatalf("expected lock to be free after release")
	}
}

func TestTryLock_ExpiresWithTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	if ok, _ := TryLock(ctx, rdb, "k", "a", time.Second); !ok {
		t.Fatalf("expected lock")
	}
	mr.FastForward(2 * time.Second)
	if ok, _ := TryLock(ctx, rdb, "k", "b", time.Second); !ok {
		t.Fatalf("expected expired lock to be free")
	}
	if ok, _ := ExtendLock(ctx, rdb, "k", "a", time.Second); ok {
		t.Fatalf("previous owner must not extend")
	}
}

func TestTryLock_ValidatesInput(t *testing.T) {
	_, rdb := newTestRedis(t)
	if _, err := TryLock(context.Background(), rdb, "", "a", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := TryLock(context.Background(), nil, "k", "a", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
