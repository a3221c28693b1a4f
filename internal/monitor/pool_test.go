package monitor

import (
	"context"
	"testing"
	"time"
)

func TestProbePoolRunsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewProbePool(2, discardLogger())
	pool.Start(ctx)

	done := make(chan struct{})
	if !pool.Submit(func(context.Context) { close(done) }) {
		t.Fatal("Submit rejected a task with an empty queue")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestProbePoolDropsWhenSaturated(t *testing.T) {
	// Never started: nothing drains the queue.
	pool := NewProbePool(1, discardLogger())

	for i := 0; i < queueDepth; i++ {
		if !pool.Submit(func(context.Context) {}) {
			t.Fatalf("Submit %d rejected before the queue was full", i)
		}
	}
	if pool.Submit(func(context.Context) {}) {
		t.Fatal("Submit accepted a task beyond the queue depth")
	}
}
