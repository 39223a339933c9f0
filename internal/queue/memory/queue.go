// Package memory provides an in-process queue for development and tests.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/wizenheimer/wayback/internal/core"
)

// Queue is a bounded in-memory queue honoring per-message delivery delay.
type Queue struct {
	ch   chan core.QueueMessage
	done chan struct{}
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch:   make(chan core.QueueMessage, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues msg after delay. A zero delay delivers immediately.
func (q *Queue) Send(ctx context.Context, msg core.QueueMessage, delay time.Duration) error {
	if delay <= 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("send canceled: %w", ctx.Err())
		case q.ch <- msg:
			return nil
		}
	}

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.done:
		case <-timer.C:
			select {
			case q.ch <- msg:
			case <-q.done:
			}
		}
	}()
	return nil
}

// Receive pops the next due message, respecting context cancellation.
func (q *Queue) Receive(ctx context.Context) (core.QueueMessage, error) {
	select {
	case <-ctx.Done():
		return core.QueueMessage{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case msg := <-q.ch:
		return msg, nil
	}
}

// Close drops any pending delayed deliveries.
func (q *Queue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
