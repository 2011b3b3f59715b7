package core

import (
	"context"
	"fmt"
)

// withTx runs fn as one write: it holds a write slot, begins a
// transaction, and commits only if fn succeeds. Every other exit path,
// including a panic in fn, rolls back before returning.
func (s *Service) withTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// No-op once committed. Rollback must still run when ctx has expired.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// readTx runs fn in a transaction that is always rolled back.
func (s *Service) readTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	return fn(tx)
}
