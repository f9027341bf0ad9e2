package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("queue closed")

type memoryQueue struct {
	ch   chan Task
	done chan struct{}

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

func NewMemory(buffer int) Queue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &memoryQueue{
		ch:   make(chan Task, buffer),
		done: make(chan struct{}),
	}
}

func (q *memoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	delay := time.Until(t.NotBefore)
	if !t.NotBefore.IsZero() && delay > 0 {
		timer := time.AfterFunc(delay, func() {
			deliver, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = q.push(deliver, t)
		})
		q.timers = append(q.timers, timer)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	return q.push(ctx, t)
}

func (q *memoryQueue) push(ctx context.Context, t Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case t := <-q.ch:
		return t, nil
	case <-q.done:
		return Task{}, ErrClosed
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (q *memoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, timer := range q.timers {
		timer.Stop()
	}
	close(q.done)
	return nil
}
