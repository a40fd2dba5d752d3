package support

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRefreshLockRunsUnguardedWithoutRedis(t *testing.T) {
	if RedisConfigured() {
		t.Skip("redisUrl is set; unguarded path not reachable")
	}

	ran := false
	err := WithRefreshLock(context.Background(), "vigil:lock:test", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithRefreshLock returned error: %v", err)
	}
	if !ran {
		t.Fatal("task did not run")
	}
}

func TestWithRefreshLockPropagatesTaskError(t *testing.T) {
	if RedisConfigured() {
		t.Skip("redisUrl is set; unguarded path not reachable")
	}

	want := errors.New("boom")
	err := WithRefreshLock(context.Background(), "vigil:lock:test", time.Minute, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want task error", err)
	}
}

func TestWithRefreshLockNilTask(t *testing.T) {
	if err := WithRefreshLock(context.Background(), "vigil:lock:test", time.Minute, nil); err == nil {
		t.Fatal("nil task accepted")
	}
}

func TestLockHolderIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := lockHolderID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate holder id %q", id)
		}
		seen[id] = struct{}{}
	}
}
