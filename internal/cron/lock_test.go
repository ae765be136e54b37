package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	data map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{data: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestRedisLockRequiresClientAndKey(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLock(nil, "lock", 0); err == nil {
		t.Fatalf("expected error without client")
	}
	if _, err := NewRedisLock(newFakeLockStore(), "", 0); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestRedisLockAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	store := newFakeLockStore()
	first, err := NewRedisLock(store, "lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first acquire to win: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to lose")
	}
}

func TestRedisLockReleaseFreesTheKey(t *testing.T) {
	t.Parallel()

	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatalf("expected acquire to succeed")
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.data["lock"]; ok {
		t.Fatalf("expected lock key to be deleted")
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatalf("expected re-acquire after release")
	}
}

func TestRedisLockReleaseSkipsForeignOwner(t *testing.T) {
	t.Parallel()

	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatalf("expected acquire to succeed")
	}

	// Simulate expiry followed by another replica taking the lock.
	store.data["lock"] = "someone-else"
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["lock"] != "someone-else" {
		t.Fatalf("expected foreign owner to keep the lock")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	t.Parallel()

	lock, err := NewRedisLock(newFakeLockStore(), "lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}
