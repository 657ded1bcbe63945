package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) LockKey(name string) string { return "sf:lock:" + name }

func TestRedisLockExclusiveAndOwnerChecked(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	locks := RedisLocks(store, "", 0)
	a, err := locks("sweep")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := locks("sweep")
	ctx := context.Background()

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire should win: ok=%v err=%v", ok, err)
	}
	if _, ok := store.data["sf:lock:cron:local:sweep"]; !ok {
		t.Fatalf("unexpected lock keys %v", store.data)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second acquire should lose")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.data) != 1 {
		t.Fatal("non-owner release must not delete the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.data) != 0 {
		t.Fatal("owner release should delete the lock")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "x", 0); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewRedisLock(&memoryStore{data: map[string]string{}}, "", 0); err == nil {
		t.Fatal("expected error without name")
	}
}
