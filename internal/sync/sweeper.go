package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/leon6002/keybox-sub000/internal/remote"
	"github.com/leon6002/keybox-sub000/internal/store"
	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// DefaultSweepDelay is the fixed delay between background sweeps, per
// spec.md section 4.6.
const DefaultSweepDelay = 5 * time.Second

// Sweeper drains the pending operations queue to the remote, per spec.md
// section 4.6's retry policy. Outbound calls are paced with
// golang.org/x/time/rate so a large backlog does not burst the remote.
type Sweeper struct {
	Queue      *store.Queue
	Optimistic *store.OptimisticStore
	Remote     *remote.Client
	Limiter    *rate.Limiter
	BatchSize  int
	SweepDelay time.Duration
}

// NewSweeper constructs a Sweeper. A nil limiter defaults to one request
// per 100ms; a zero sweepDelay defaults to DefaultSweepDelay.
func NewSweeper(queue *store.Queue, optimistic *store.OptimisticStore, remoteClient *remote.Client, limiter *rate.Limiter, batchSize int, sweepDelay time.Duration) *Sweeper {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	}
	if sweepDelay <= 0 {
		sweepDelay = DefaultSweepDelay
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Sweeper{Queue: queue, Optimistic: optimistic, Remote: remoteClient, Limiter: limiter, BatchSize: batchSize, SweepDelay: sweepDelay}
}

// Run sweeps periodically until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, userID string) {
	ticker := time.NewTicker(s.SweepDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx, userID); err != nil {
				slog.Debug("sync sweep failed", "userId", userID, "error", err)
			}
		}
	}
}

// SweepOnce drains up to BatchSize operations for userID and applies each
// to the remote, per spec.md section 4.6. An offline detection
// (ErrNetworkUnavailable on the first operation) short-circuits the sweep
// without mutating any row.
func (s *Sweeper) SweepOnce(ctx context.Context, userID string) error {
	ops, err := s.Queue.Drain(userID, s.BatchSize)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	for i, op := range ops {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}

		applyErr := s.apply(ctx, op)
		if applyErr == nil {
			if err := s.Queue.Complete(op.ID); err != nil {
				slog.Debug("failed to complete synced operation", "opId", op.ID, "error", err)
			}
			continue
		}

		if errors.Is(applyErr, vaulterr.ErrNetworkUnavailable) {
			if i == 0 {
				slog.Debug("sync sweep detected offline remote, leaving rows syncing", "userId", userID)
				return nil
			}
			continue
		}

		var clientErr *vaulterr.ClientError
		exhaustImmediately := errors.As(applyErr, &clientErr)
		if err := s.Queue.Fail(op.ID, exhaustImmediately); err != nil {
			slog.Debug("failed to record sweep failure", "opId", op.ID, "error", err)
		}
	}
	return nil
}

// apply sends one queued operation to the remote. The pending operation
// references an already-encrypted local record rather than holding a
// fresh copy, per spec.md section 3; apply looks that cipher up from the
// optimistic store so no plaintext ever passes through the queue.
func (s *Sweeper) apply(ctx context.Context, op store.PendingOperation) error {
	switch op.Kind {
	case store.OpDelete:
		return s.Remote.DeletePassword(ctx, op.UserID, op.RecordID)
	case store.OpCreate, store.OpUpdate:
		cipherJSON, err := s.Optimistic.EncryptedCipherJSON(op.RecordID, op.UserID)
		if err != nil {
			return fmt.Errorf("look up encrypted cipher: %w", err)
		}
		_, err = s.Remote.SavePassword(ctx, op.UserID, cipherJSON, op.Kind == store.OpUpdate, op.RecordID)
		return err
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
