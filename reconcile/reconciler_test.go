package reconcile_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paystream/relay/journal"
	"github.com/paystream/relay/publish"
	"github.com/paystream/relay/reconcile"
	"github.com/paystream/relay/store"
	"github.com/paystream/relay/task"
)

func newReconciler(st store.PaymentStore) *reconcile.Reconciler {
	return reconcile.New(st, journal.Noop{}, publish.Noop{}, zap.NewNop())
}

// submit mimics the gateway's writes: lock, queue entry, set membership.
func submit(t *testing.T, st store.PaymentStore, id string, amount float64, token string) {
	t.Helper()
	ctx := context.Background()
	acquired, err := st.AcquireLock(ctx, id, token, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	payload, err := task.Encode(task.New(id, amount, "test", token))
	require.NoError(t, err)
	require.NoError(t, st.Enqueue(ctx, id, payload))
}

func TestRecordOutcomesSuccess(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "c1", 100.0, "tok-1")

	err := newReconciler(st).RecordOutcomes(ctx, []task.Outcome{
		{Success: true, Processor: task.ProcessorDefault, CorrelationID: "c1", Amount: 100.0, LockToken: "tok-1"},
	})
	require.NoError(t, err)

	assert.Contains(t, st.SetMembers(store.ProcessedKey), "c1")
	assert.Empty(t, st.SetMembers(store.PendingKey))
	assert.Empty(t, st.SetMembers(store.FailedKey))

	held, err := st.HeldLocks(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.False(t, held["c1"])

	summary, counts, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Default.TotalRequests)
	assert.Equal(t, 100.0, summary.Default.TotalAmount)
	assert.Zero(t, summary.Fallback.TotalRequests)
	assert.Equal(t, int64(1), counts.Processed)
	assert.Zero(t, counts.Pending)
}

func TestRecordOutcomesFallbackStats(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "c2", 20.0, "tok-2")

	err := newReconciler(st).RecordOutcomes(ctx, []task.Outcome{
		{Success: true, Processor: task.ProcessorFallback, CorrelationID: "c2", Amount: 20.0, LockToken: "tok-2"},
	})
	require.NoError(t, err)

	summary, _, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Default.TotalRequests)
	assert.Equal(t, int64(1), summary.Fallback.TotalRequests)
	assert.Equal(t, 20.0, summary.Fallback.TotalAmount)
}

func TestRecordOutcomesFailure(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "c3", 5.0, "tok-3")

	err := newReconciler(st).RecordOutcomes(ctx, []task.Outcome{
		{Success: false, Processor: task.ProcessorFallback, CorrelationID: "c3", Amount: 5.0, LockToken: "tok-3"},
	})
	require.NoError(t, err)

	assert.Contains(t, st.SetMembers(store.FailedKey), "c3")
	assert.NotContains(t, st.SetMembers(store.ProcessedKey), "c3")
	assert.Empty(t, st.SetMembers(store.PendingKey))

	held, err := st.HeldLocks(ctx, []string{"c3"})
	require.NoError(t, err)
	assert.False(t, held["c3"])

	// Failures never touch the stats counters.
	summary, _, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Default.TotalRequests)
	assert.Zero(t, summary.Fallback.TotalRequests)
}

func TestRecordOutcomesKeepsForeignLock(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "c4", 1.0, "current-owner")

	// An outcome carrying a stale token must not release a lock that was
	// re-acquired after expiry by a later submission.
	err := newReconciler(st).RecordOutcomes(ctx, []task.Outcome{
		{Success: true, Processor: task.ProcessorDefault, CorrelationID: "c4", Amount: 1.0, LockToken: "stale-owner"},
	})
	require.NoError(t, err)

	held, err := st.HeldLocks(ctx, []string{"c4"})
	require.NoError(t, err)
	assert.True(t, held["c4"])
}

func TestRecordOutcomesEmptyIsNoop(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	require.NoError(t, newReconciler(st).RecordOutcomes(context.Background(), nil))

	_, counts, err := st.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Submitted)
}

func TestRecordOutcomesPublishesEvents(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "c5", 33.0, "tok-5")

	pub := publish.NewChannelPublisher()
	events := pub.Subscribe(publish.OutcomeChannel)
	rec := reconcile.New(st, journal.Noop{}, pub, zap.NewNop())

	err := rec.RecordOutcomes(ctx, []task.Outcome{
		{Success: true, Processor: task.ProcessorFallback, CorrelationID: "c5", Amount: 33.0, LockToken: "tok-5"},
	})
	require.NoError(t, err)

	select {
	case data := <-events:
		var ev publish.OutcomeEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		assert.Equal(t, "c5", ev.CorrelationID)
		assert.Equal(t, 33.0, ev.Amount)
		assert.Equal(t, "fallback", ev.Processor)
		assert.True(t, ev.Success)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for outcome event")
	}
}

func TestReconcileOrphansClearsPendingWithoutLock(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	// Orphan: queued but its lock vanished (owner crashed, lock expired).
	require.NoError(t, st.Enqueue(ctx, "orphan", "payload"))
	// Healthy in-flight payment keeps its lock and stays pending.
	submit(t, st, "inflight", 1.0, "tok")

	require.NoError(t, newReconciler(st).ReconcileOrphans(ctx))

	pending := st.SetMembers(store.PendingKey)
	assert.NotContains(t, pending, "orphan")
	assert.Contains(t, pending, "inflight")

	// The repair never fabricates a terminal record.
	assert.Empty(t, st.SetMembers(store.ProcessedKey))
	assert.Empty(t, st.SetMembers(store.FailedKey))
}

func TestReconcileOrphansDropsStaleLocks(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	// A lock with no pending entry and no terminal record: the owner died
	// between taking the lock and enqueueing.
	acquired, err := st.AcquireLock(ctx, "stale", "tok", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, newReconciler(st).ReconcileOrphans(ctx))

	held, err := st.HeldLocks(ctx, []string{"stale"})
	require.NoError(t, err)
	assert.False(t, held["stale"])
	assert.Empty(t, st.SetMembers(store.ProcessedKey))
	assert.Empty(t, st.SetMembers(store.FailedKey))
}

func TestReconcileOrphansLeavesHealthyStateAlone(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()
	submit(t, st, "healthy", 2.0, "tok")

	require.NoError(t, newReconciler(st).ReconcileOrphans(ctx))

	assert.Contains(t, st.SetMembers(store.PendingKey), "healthy")
	held, err := st.HeldLocks(ctx, []string{"healthy"})
	require.NoError(t, err)
	assert.True(t, held["healthy"])
}
