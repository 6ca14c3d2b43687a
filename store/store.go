package store

import (
	"context"
	"time"

	"github.com/paystream/relay/task"
)

// Key layout shared by the gateway and the worker.
const (
	QueueKey     = "payment_queue"
	SubmittedKey = "submitted_payments"
	PendingKey   = "pending_payments"
	ProcessedKey = "processed_payments"
	FailedKey    = "failed_payments"
	SummaryKey   = "summary"
	LockPrefix   = "processing:"
)

// Summary hash fields. Count and amount for a processor are always
// incremented in the same pipeline as the membership-set update recording
// the same outcome, so readers never observe one without the other.
const (
	FieldSuccess        = "success"
	FieldSuccessAmount  = "success_amount"
	FieldFallback       = "fallback"
	FieldFallbackAmount = "fallback_amount"
)

// LockKey returns the processing-lock key for a correlation ID.
func LockKey(correlationID string) string {
	return LockPrefix + correlationID
}

// PaymentStore provides the atomic store primitives the gateway and worker
// coordinate through. Multi-key mutations are applied in a single pipelined
// round trip so concurrent readers never see partial application.
type PaymentStore interface {
	Ping(ctx context.Context) error

	// Enqueue pushes one encoded task and records submitted/pending
	// membership for its correlation ID in the same round trip.
	Enqueue(ctx context.Context, correlationID, payload string) error

	// AcquireLock sets the processing lock for a correlation ID if absent,
	// storing token as its value. Returns false when already held.
	AcquireLock(ctx context.Context, correlationID, token string, ttl time.Duration) (bool, error)

	// ReleaseLock unconditionally drops a lock. Used by the gateway when
	// enqueueing fails after the lock was taken.
	ReleaseLock(ctx context.Context, correlationID string) error

	// FetchBatch blocks on the queue head for up to pollTimeout, then
	// opportunistically drains up to min(batchSize-1, 50) more tasks
	// without blocking. An empty result means no work, not an error.
	FetchBatch(ctx context.Context, batchSize int, pollTimeout time.Duration) ([]string, error)

	// RecordOutcomes applies every terminal outcome in one pipelined round
	// trip: pending removal, processed/failed membership, stats increments,
	// and lock release. Locks with a token are released via
	// compare-and-delete; legacy outcomes without one are dropped by key.
	RecordOutcomes(ctx context.Context, outcomes []task.Outcome) error

	PendingMembers(ctx context.Context) ([]string, error)

	// HeldLocks reports which of the given correlation IDs still hold a
	// processing lock.
	HeldLocks(ctx context.Context, correlationIDs []string) (map[string]bool, error)

	// ClearPending removes orphaned correlation IDs from the pending set.
	ClearPending(ctx context.Context, correlationIDs []string) error

	// ActiveLocks returns the correlation IDs of all live processing locks.
	ActiveLocks(ctx context.Context) ([]string, error)

	// Accounted reports, per correlation ID, whether it appears in any of
	// the pending, processed, or failed sets.
	Accounted(ctx context.Context, correlationIDs []string) (map[string]bool, error)

	// DropLocks unlinks the processing locks for the given correlation IDs.
	DropLocks(ctx context.Context, correlationIDs []string) error

	// InitSummary creates the summary hash fields if absent so readers see
	// zeros instead of missing fields.
	InitSummary(ctx context.Context) error

	Summary(ctx context.Context) (*task.Summary, *task.Counts, error)

	// Purge removes every queue, set, summary, and lock key.
	Purge(ctx context.Context) error

	Close() error
}
