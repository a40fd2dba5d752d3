package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	storedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := st.Set(ctx, "k", []byte("value"), storedAt); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	value, at, err := st.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Fatalf("value = %q", value)
	}
	if !at.Equal(storedAt) {
		t.Fatalf("storedAt = %v, want %v", at, storedAt)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	_, _, err := NewMemoryStore().Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := st.Set(ctx, "k", []byte("old"), t0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := st.Set(ctx, "k", []byte("new"), t0.Add(time.Hour)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	value, at, err := st.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !bytes.Equal(value, []byte("new")) || !at.Equal(t0.Add(time.Hour)) {
		t.Fatalf("value = %q at %v, want last write", value, at)
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Set(ctx, "k", []byte("value"), time.Now()); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := st.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, _, err := st.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove error = %v, want ErrNotFound", err)
	}

	// Removing an absent key is not an error.
	if err := st.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove(absent) returned error: %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	in := []byte("original")
	if err := st.Set(ctx, "k", in, time.Now()); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	in[0] = 'X'

	out, _, err := st.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !bytes.Equal(out, []byte("original")) {
		t.Fatalf("stored value aliased caller buffer: %q", out)
	}

	out[0] = 'Y'
	again, _, _ := st.Get(ctx, "k")
	if !bytes.Equal(again, []byte("original")) {
		t.Fatalf("returned value aliased stored buffer: %q", again)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%4)
			for j := 0; j < 100; j++ {
				_ = st.Set(ctx, key, []byte("v"), time.Now())
				_, _, _ = st.Get(ctx, key)
				_ = st.Remove(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
