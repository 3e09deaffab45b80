package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"call-transcriber-go/internal/types"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v", err)
	}
	if err := m.Put(ctx, types.JobResult{}); err == nil {
		t.Fatal("Put without key should fail")
	}
	want := types.JobResult{JobKey: "k1", Transcript: "hello world from the call", Segments: 3}
	if err := m.Put(ctx, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Transcript != want.Transcript || got.Segments != 3 {
		t.Fatalf("got = %+v", got)
	}
}

func TestMemoryExpires(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.Put(context.Background(), types.JobResult{JobKey: "k"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if _, err := m.Get(context.Background(), "k"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := m.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestRedisRoundTrip needs a live server; set REDIS_ADDR to run it.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := Dial(ctx, addr, time.Minute)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer r.Close()

	key := "test-" + uuid.New().String()
	if _, err := r.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v", err)
	}
	if err := r.Put(ctx, types.JobResult{JobKey: key, Transcript: "cached text", ErrorKind: ""}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := r.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Transcript != "cached text" {
		t.Fatalf("got = %+v", got)
	}
}
