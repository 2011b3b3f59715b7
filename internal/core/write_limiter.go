package core

// write_limiter.go serializes writes through a small pool of slots.
//
// The sequential id strategies read the current maximum and insert one
// above it. Two writers doing that at once compute the same id and the
// second insert fails with a conflict. Holding a slot for the lifetime of
// each write transaction removes that race within one process; with the
// default of one slot the process is a single writer. Writers in other
// processes are still only guarded by the uniqueness constraint.
//
// When all slots are taken a writer waits up to maxWait before failing with
// ErrWriterBusy. WaitForDrain lets shutdown wait for in-flight writes.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWriterBusy is returned when no write slot frees up within the wait
// timeout. The operation did not touch storage and can be retried.
var ErrWriterBusy = errors.New("writer busy, please try again later")

// DefaultMaxConcurrentWrites keeps allocation single-writer.
const DefaultMaxConcurrentWrites = 1

// DefaultMaxWriteWait is how long to wait for a slot before rejecting.
const DefaultMaxWriteWait = 30 * time.Second

// WriteLimiter is a counting semaphore over write transactions.
type WriteLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewWriteLimiter creates a limiter allowing maxConcurrent writers.
func NewWriteLimiter(maxConcurrent int, maxWait time.Duration) *WriteLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentWrites
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWriteWait
	}

	return &WriteLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait.
// The caller MUST call Release when the write finishes.
func (l *WriteLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from our own wait timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrWriterBusy
	}
}

// Release returns a slot taken by Acquire.
func (l *WriteLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of writes in flight.
func (l *WriteLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no writes are in flight or ctx ends.
func (l *WriteLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriterStatus is a snapshot of the limiter.
type WriterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *WriteLimiter) Status() WriterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return WriterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
