package sandbox_test

import (
	"context"
	"testing"

	"bitbattle/internal/sandbox"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool := sandbox.NewPool(2)
	if pool.Size() != 2 {
		t.Fatalf("expected size 2, got %d", pool.Size())
	}

	ctx := context.Background()
	if err := pool.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := pool.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	pool.Release()
	if err := pool.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestPoolAcquireCancelled(t *testing.T) {
	pool := sandbox.NewPool(1)
	if err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("fill pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Acquire(ctx); err == nil {
		t.Fatal("expected error acquiring from a full pool with cancelled context")
	}
}

func TestPoolDefaultSize(t *testing.T) {
	pool := sandbox.NewPool(0)
	if pool.Size() < 1 || pool.Size() > 8 {
		t.Fatalf("expected default size between 1 and 8, got %d", pool.Size())
	}
}

func TestPoolReleaseWithoutAcquire(t *testing.T) {
	pool := sandbox.NewPool(1)
	// Must not panic or corrupt the slot count.
	pool.Release()
	if err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}
