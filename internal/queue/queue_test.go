package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocal_DeliversAllTriggers(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int64]int)

	q := NewLocal(func(ctx context.Context, orderID int64) error {
		mu.Lock()
		seen[orderID]++
		mu.Unlock()
		return nil
	}, 4, 16, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	for i := int64(1); i <= 20; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 20 {
		t.Fatalf("expected 20 distinct triggers handled, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("order %d handled %d times, expected 1", id, n)
		}
	}
}

func TestLocal_HandlerTimeout(t *testing.T) {
	done := make(chan struct{})

	q := NewLocal(func(ctx context.Context, orderID int64) error {
		defer close(done)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, 1, 1, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if err := q.Enqueue(ctx, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not observe its deadline")
	}
	q.Close()
}

func TestLocal_EnqueueAfterClose(t *testing.T) {
	q := NewLocal(func(ctx context.Context, orderID int64) error { return nil }, 1, 1, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Close()

	if err := q.Enqueue(ctx, 1); err == nil {
		t.Fatal("expected error enqueueing on a closed queue")
	}
}
