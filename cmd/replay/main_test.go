package main

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	if wait(ctx, time.Hour) {
		t.Fatalf("wait reported completion on a cancelled context")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("wait took %s after cancel", elapsed)
	}
}

func TestWaitCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if wait(ctx, time.Hour) {
		t.Fatalf("wait reported completion after cancel")
	}
}

func TestWaitElapses(t *testing.T) {
	if !wait(context.Background(), 5*time.Millisecond) {
		t.Fatalf("wait reported cancellation on a live context")
	}
}
