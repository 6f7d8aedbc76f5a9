package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const lockKey = "reconciliation-run"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, time.Minute)
}

func TestRedisLockIsExclusive(t *testing.T) {
	_, locker := newTestRedis(t)
	ctx := context.Background()

	release, ok, err := locker.TryAcquire(ctx, lockKey)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	if _, ok, err := locker.TryAcquire(ctx, lockKey); err != nil || ok {
		t.Fatalf("expected second acquire to be refused, ok=%v err=%v", ok, err)
	}

	release()
	release2, ok, err := locker.TryAcquire(ctx, lockKey)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, ok=%v err=%v", ok, err)
	}
	release2()
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	release, ok, err := locker.TryAcquire(ctx, lockKey)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, ok=%v err=%v", ok, err)
	}

	// our TTL lapsed and another holder took over
	mr.FastForward(2 * time.Minute)
	if err := mr.Set(redisKeyPrefix+lockKey, "other-holder"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}

	release()
	got, err := mr.Get(redisKeyPrefix + lockKey)
	if err != nil || got != "other-holder" {
		t.Fatalf("foreign lock must survive release, got %q err=%v", got, err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	if _, ok, _ := locker.TryAcquire(ctx, lockKey); !ok {
		t.Fatal("expected acquire to succeed")
	}
	mr.FastForward(2 * time.Minute)

	release, ok, err := locker.TryAcquire(ctx, lockKey)
	if err != nil || !ok {
		t.Fatalf("expected acquire after expiry, ok=%v err=%v", ok, err)
	}
	release()
}

func TestRedisAcquireFailsWhenUnreachable(t *testing.T) {
	mr, locker := newTestRedis(t)
	mr.Close()

	if _, _, err := locker.TryAcquire(context.Background(), lockKey); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
