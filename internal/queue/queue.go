// Package queue schedules matching attempts. A trigger is a message
// carrying an order id, delivered at least once; the matching engine
// re-checks order status under lock, so redelivery is harmless.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one matching trigger.
type Handler func(ctx context.Context, orderID int64) error

// Local is an in-process trigger queue: a buffered channel drained by a
// fixed pool of workers. It serves single-node deployments and tests;
// multi-node deployments use the Kafka dispatcher instead.
type Local struct {
	handler Handler
	timeout time.Duration
	log     *slog.Logger

	ch      chan int64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	workers int
}

// NewLocal creates a local queue. timeout bounds each matching attempt;
// an attempt that exceeds it is abandoned and the order stays open.
func NewLocal(handler Handler, workers, buffer int, timeout time.Duration, logger *slog.Logger) *Local {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		handler: handler,
		timeout: timeout,
		log:     logger,
		ch:      make(chan int64, buffer),
		workers: workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Close is called.
func (q *Local) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *Local) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case orderID, ok := <-q.ch:
			if !ok {
				return
			}
			q.handle(orderID)
		}
	}
}

func (q *Local) handle(orderID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.handler(ctx, orderID); err != nil {
		q.log.Error("match attempt failed",
			slog.Int64("order_id", orderID), slog.String("error", err.Error()))
	}
}

// Enqueue submits a trigger. It blocks only while the buffer is full and
// respects ctx cancellation.
func (q *Local) Enqueue(ctx context.Context, orderID int64) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue closed")
	}

	select {
	case q.ch <- orderID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting triggers and waits for in-flight attempts.
func (q *Local) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}
