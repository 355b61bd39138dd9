package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxRetries is the retry budget for a pending operation before it
// is marked failed, per spec.md section 4.6.
const DefaultMaxRetries = 3

// Queue is the durable pending-operations queue (C6).
type Queue struct {
	db *gorm.DB
}

// NewQueue constructs a Queue backed by db.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue inserts a new pending operation. It is idempotent over
// (kind, recordId, localTimestamp): a row already matching that triple is
// returned unchanged instead of duplicated.
func (q *Queue) Enqueue(kind OperationKind, recordID, userID string, localTimestamp time.Time) (PendingOperation, error) {
	var existing PendingOperation
	err := q.db.First(&existing, "kind = ? AND record_id = ? AND local_timestamp = ?",
		kind, recordID, localTimestamp).Error
	if err == nil {
		return existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return PendingOperation{}, fmt.Errorf("enqueue lookup: %w", err)
	}

	op := PendingOperation{
		ID:             uuid.NewString(),
		Kind:           kind,
		RecordID:       recordID,
		UserID:         userID,
		EnqueuedAt:     time.Now().UTC(),
		LocalTimestamp: localTimestamp,
		RetryCount:     0,
		MaxRetries:     DefaultMaxRetries,
		Status:         StatusPending,
	}
	if err := q.db.Create(&op).Error; err != nil {
		return PendingOperation{}, fmt.Errorf("enqueue: %w", err)
	}
	return op, nil
}

// Drain returns up to batchSize pending operations for userID in enqueue
// order, marking them syncing atomically so concurrent drains never pick
// the same row, per spec.md section 4.6.
func (q *Queue) Drain(userID string, batchSize int) ([]PendingOperation, error) {
	var drained []PendingOperation
	err := q.db.Transaction(func(tx *gorm.DB) error {
		var candidates []PendingOperation
		if err := tx.Order("enqueued_at asc").
			Where("user_id = ? AND status = ?", userID, StatusPending).
			Limit(batchSize).Find(&candidates).Error; err != nil {
			return err
		}
		for _, op := range candidates {
			if err := tx.Model(&PendingOperation{}).
				Where("id = ? AND status = ?", op.ID, StatusPending).
				Update("status", StatusSyncing).Error; err != nil {
				return err
			}
			op.Status = StatusSyncing
			drained = append(drained, op)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}
	return drained, nil
}

// Complete removes a finished operation's row.
func (q *Queue) Complete(opID string) error {
	return q.db.Delete(&PendingOperation{}, "id = ?", opID).Error
}

// Fail records a failed sync attempt. exhaustImmediately is set by the
// caller for a 4xx ClientError, which per spec.md section 4.6 transitions
// straight to failed without consuming a retry.
func (q *Queue) Fail(opID string, exhaustImmediately bool) error {
	var op PendingOperation
	if err := q.db.First(&op, "id = ?", opID).Error; err != nil {
		return fmt.Errorf("fail lookup: %w", err)
	}

	if exhaustImmediately {
		return q.db.Model(&op).Update("status", StatusFailed).Error
	}

	op.RetryCount++
	status := StatusPending
	if op.RetryCount >= op.MaxRetries {
		status = StatusFailed
	}
	return q.db.Model(&PendingOperation{}).Where("id = ?", opID).
		Updates(map[string]any{"retry_count": op.RetryCount, "status": status}).Error
}

// QueueStatus is the summary returned by Status().
type QueueStatus struct {
	PendingCount  int64
	FailedCount   int64
	LastAttemptAt *time.Time
}

// Status reports a per-user queue summary, per spec.md section 4.6.
func (q *Queue) Status(userID string) (QueueStatus, error) {
	var status QueueStatus
	if err := q.db.Model(&PendingOperation{}).
		Where("user_id = ? AND status = ?", userID, StatusPending).
		Count(&status.PendingCount).Error; err != nil {
		return QueueStatus{}, err
	}
	if err := q.db.Model(&PendingOperation{}).
		Where("user_id = ? AND status = ?", userID, StatusFailed).
		Count(&status.FailedCount).Error; err != nil {
		return QueueStatus{}, err
	}
	var last PendingOperation
	err := q.db.Where("user_id = ?", userID).Order("enqueued_at desc").First(&last).Error
	if err == nil {
		status.LastAttemptAt = &last.EnqueuedAt
	} else if err != gorm.ErrRecordNotFound {
		return QueueStatus{}, err
	}
	return status, nil
}
