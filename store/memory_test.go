package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream/relay/store"
	"github.com/paystream/relay/task"
)

func TestMemoryFetchBatchDrainsInOrder(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	require.NoError(t, st.Enqueue(ctx, "c1", "p1"))
	require.NoError(t, st.Enqueue(ctx, "c2", "p2"))
	require.NoError(t, st.Enqueue(ctx, "c3", "p3"))

	batch, err := st.FetchBatch(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, batch)
}

func TestMemoryFetchBatchRespectsBatchSize(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Enqueue(ctx, "c", "p"))
	}

	batch, err := st.FetchBatch(ctx, 2, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	rest, err := st.FetchBatch(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestMemoryFetchBatchEmptyAfterTimeout(t *testing.T) {
	st := store.NewMemoryPaymentStore()

	start := time.Now()
	batch, err := st.FetchBatch(context.Background(), 10, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMemoryLockDeduplicates(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	first, err := st.AcquireLock(ctx, "c1", "tok-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := st.AcquireLock(ctx, "c1", "tok-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestMemoryLockExpires(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	_, err := st.AcquireLock(ctx, "c1", "tok-a", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	again, err := st.AcquireLock(ctx, "c1", "tok-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestMemoryEnqueueTracksMembership(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	require.NoError(t, st.Enqueue(context.Background(), "c1", "p1"))

	assert.Contains(t, st.SetMembers(store.SubmittedKey), "c1")
	assert.Contains(t, st.SetMembers(store.PendingKey), "c1")
}

func TestMemoryPurge(t *testing.T) {
	st := store.NewMemoryPaymentStore()
	ctx := context.Background()

	require.NoError(t, st.Enqueue(ctx, "c1", "p1"))
	_, err := st.AcquireLock(ctx, "c1", "tok", time.Minute)
	require.NoError(t, err)
	require.NoError(t, st.RecordOutcomes(ctx, []task.Outcome{
		{Success: true, Processor: task.ProcessorDefault, CorrelationID: "c1", Amount: 9.0},
	}))

	require.NoError(t, st.Purge(ctx))

	summary, counts, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Submitted)
	assert.Zero(t, summary.Default.TotalRequests)
	batch, err := st.FetchBatch(ctx, 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
