package store

import (
	"testing"
	"time"

	"github.com/leon6002/keybox-sub000/internal/crypto"
	"github.com/leon6002/keybox-sub000/internal/vault"
)

func newTestDB(t *testing.T) *State {
	t.Helper()
	st, err := InitDB("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return st
}

func TestCachePutGetHitAndEviction(t *testing.T) {
	st := newTestDB(t)
	cache := NewCache(st.DB, 20*time.Millisecond)

	key, err := Fingerprint("passwords/load", "user-1", map[string]any{})
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if err := cache.Put(key, "user-1", []byte("opaque-bytes"), "v1"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, hit, err := cache.Get(key, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit || string(data) != "opaque-bytes" {
		t.Fatalf("expected a cache hit with the stored bytes, got hit=%v data=%q", hit, data)
	}

	if _, hit, _ := cache.Get(key, "user-2"); hit {
		t.Fatalf("expected a miss on userID mismatch")
	}
	if _, hit, _ := cache.Get(key, "user-1"); hit {
		t.Fatalf("expected userID-mismatch lookup to have evicted the entry")
	}
}

func TestCacheEvictsOnAge(t *testing.T) {
	st := newTestDB(t)
	cache := NewCache(st.DB, 5*time.Millisecond)

	key, _ := Fingerprint("passwords/load", "user-1", map[string]any{})
	if err := cache.Put(key, "user-1", []byte("x"), "v1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, hit, _ := cache.Get(key, "user-1"); hit {
		t.Fatalf("expected a miss once the entry is older than the TTL")
	}
}

func TestQueueEnqueueDrainCompleteFail(t *testing.T) {
	st := newTestDB(t)
	queue := NewQueue(st.DB)

	now := time.Now().UTC()
	op, err := queue.Enqueue(OpCreate, "rec-1", "user-1", now)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if op.Status != StatusPending {
		t.Fatalf("expected a pending row after enqueue")
	}

	// Re-enqueueing the same (kind, recordId, localTimestamp) must be a no-op.
	again, err := queue.Enqueue(OpCreate, "rec-1", "user-1", now)
	if err != nil {
		t.Fatalf("Enqueue (idempotent): %v", err)
	}
	if again.ID != op.ID {
		t.Fatalf("expected enqueue to be idempotent over (kind, recordId, localTimestamp)")
	}

	drained, err := queue.Drain("user-1", 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 1 || drained[0].Status != StatusSyncing {
		t.Fatalf("expected exactly one row marked syncing, got %+v", drained)
	}

	// A second drain must not pick up the same now-syncing row.
	drainedAgain, err := queue.Drain("user-1", 10)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drainedAgain) != 0 {
		t.Fatalf("expected no rows left to drain")
	}

	if err := queue.Fail(drained[0].ID, false); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	status, err := queue.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PendingCount != 1 {
		t.Fatalf("expected the failed-with-retries-left row back in pending, got %+v", status)
	}
}

func TestQueueFailExhaustsAfterMaxRetries(t *testing.T) {
	st := newTestDB(t)
	queue := NewQueue(st.DB)

	op, err := queue.Enqueue(OpUpdate, "rec-2", "user-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for i := 0; i < DefaultMaxRetries; i++ {
		if err := queue.Fail(op.ID, false); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}
	status, err := queue.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.FailedCount != 1 || status.PendingCount != 0 {
		t.Fatalf("expected the operation to be failed after exhausting retries, got %+v", status)
	}
}

func TestQueueFailExhaustsImmediatelyOnClientError(t *testing.T) {
	st := newTestDB(t)
	queue := NewQueue(st.DB)

	op, err := queue.Enqueue(OpDelete, "rec-3", "user-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.Fail(op.ID, true); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	status, err := queue.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.FailedCount != 1 {
		t.Fatalf("expected an immediate client-error failure to mark the row failed, got %+v", status)
	}
}

func TestOptimisticStoreCreateUpdateDeleteList(t *testing.T) {
	st := newTestDB(t)
	queue := NewQueue(st.DB)
	opt := NewOptimisticStore(st.DB, queue)

	userKey, err := crypto.RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}

	record := vault.CredentialRecord{ID: "rec-1", Title: "Gmail", Username: "alice"}
	row, err := opt.Create(record, "user-1", userKey)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row.SyncStatus != SyncPending {
		t.Fatalf("expected a new local record to start sync_status=pending")
	}

	status, err := queue.Status("user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PendingCount != 1 {
		t.Fatalf("expected Create to enqueue a pending operation, got %+v", status)
	}

	result, err := opt.List("user-1", userKey)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Title != "Gmail" {
		t.Fatalf("expected List to decrypt the created record, got %+v", result)
	}

	record.Title = "Gmail (work)"
	if _, err := opt.Update(record, "user-1", userKey); err != nil {
		t.Fatalf("Update: %v", err)
	}
	result, err = opt.List("user-1", userKey)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Title != "Gmail (work)" {
		t.Fatalf("expected List to reflect the update, got %+v", result)
	}

	if err := opt.Delete("rec-1", "user-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	result, err = opt.List("user-1", userKey)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("expected a deleted record to be excluded from List, got %+v", result)
	}
}
