// Package worker drives the fetch/dispatch/reconcile cycle against the
// shared store. One worker runs one cycle at a time; concurrency lives
// inside the dispatch fan-out, and multiple worker processes coordinate
// only through the store's locks and pipelined writes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/paystream/relay/config"
	"github.com/paystream/relay/dispatch"
	"github.com/paystream/relay/journal"
	"github.com/paystream/relay/publish"
	"github.com/paystream/relay/reconcile"
	"github.com/paystream/relay/store"
	"github.com/paystream/relay/task"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	emptyBatchPause = 10 * time.Millisecond
	cycleErrorPause = 500 * time.Millisecond
)

// ErrStoreUnavailable is returned when the initial store connection cannot
// be established. The process exits and the supervisor restarts it; there
// is no in-process retry beyond the bounded startup attempts.
var ErrStoreUnavailable = errors.New("store unavailable")

type Worker struct {
	cfg     *config.Worker
	log     *zap.Logger
	journal journal.Journal
	pub     publish.Publisher

	// connect is replaceable so tests can supply a pre-seeded store.
	connect func(connString string) (store.PaymentStore, error)
}

func New(cfg *config.Worker, log *zap.Logger, j journal.Journal, pub publish.Publisher) *Worker {
	return &Worker{cfg: cfg, log: log, journal: j, pub: pub, connect: store.Connect}
}

// Run blocks until ctx is cancelled or the initial store connection fails.
// Cycle-level faults are absorbed; a lost store connection moves the worker
// through a reconnect loop with capped exponential backoff.
func (w *Worker) Run(ctx context.Context) error {
	st, err := w.connectWithRetry(ctx)
	if err != nil {
		return err
	}
	defer func() { st.Close() }()

	client := dispatch.NewClient(w.cfg.HTTPTimeout())
	dispatcher := dispatch.NewDispatcher(client, w.cfg.MaxRetries, w.cfg.BackoffBase())
	orch := dispatch.NewOrchestrator(dispatcher, w.cfg.DefaultProcessorURL, w.cfg.FallbackProcessorURL, w.log)
	recon := reconcile.New(st, w.journal, w.pub, w.log)

	reconnectDelay := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}
	ticker := time.NewTicker(w.cfg.ReconcileInterval())
	defer ticker.Stop()

	w.log.Info("worker running",
		zap.String("defaultProcessor", w.cfg.DefaultProcessorURL),
		zap.String("fallbackProcessor", w.cfg.FallbackProcessorURL),
		zap.Int("batchSize", w.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := recon.ReconcileOrphans(ctx); err != nil {
				w.log.Error("orphan reconciliation failed", zap.Error(err))
			}
			continue
		default:
		}

		err := w.cycle(ctx, st, orch, recon)
		if err == nil {
			reconnectDelay.Reset()
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error("cycle failed", zap.Error(err))

		// A failed cycle with a healthy store is a transient fault. A
		// failed ping means the connection is gone and must be rebuilt.
		if pingErr := st.Ping(ctx); pingErr == nil {
			sleepCtx(ctx, cycleErrorPause)
			continue
		}
		st.Close()
		st, err = w.reconnect(ctx, reconnectDelay)
		if err != nil {
			return err
		}
		recon = reconcile.New(st, w.journal, w.pub, w.log)
	}
}

// cycle runs one fetch → decode → dispatch → record pass.
func (w *Worker) cycle(ctx context.Context, st store.PaymentStore, orch *dispatch.Orchestrator, recon *reconcile.Reconciler) error {
	batch, err := st.FetchBatch(ctx, w.cfg.BatchSize, w.cfg.PollTimeout())
	if err != nil {
		return fmt.Errorf("fetch batch: %w", err)
	}
	if len(batch) == 0 {
		sleepCtx(ctx, emptyBatchPause)
		return nil
	}

	payments := w.decodeBatch(batch)
	if len(payments) == 0 {
		return nil
	}

	outcomes := orch.ProcessBatch(ctx, payments)
	if err := recon.RecordOutcomes(ctx, outcomes); err != nil {
		return err
	}

	successes := 0
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
	}
	w.log.Info("batch processed",
		zap.Int("total", len(payments)),
		zap.Int("successful", successes),
		zap.Int("failed", len(payments)-successes))
	return nil
}

// decodeBatch drops malformed payloads one at a time; a bad task never
// takes the rest of the batch down with it.
func (w *Worker) decodeBatch(batch []string) []*task.PaymentTask {
	payments := make([]*task.PaymentTask, 0, len(batch))
	for _, payload := range batch {
		t, err := task.Decode(payload)
		if err != nil {
			w.log.Warn("dropping undecodable task", zap.Error(err))
			continue
		}
		payments = append(payments, t)
	}
	return payments
}

// connectWithRetry performs the bounded startup connection: a handful of
// attempts with linear backoff, then a fatal error for the supervisor.
func (w *Worker) connectWithRetry(ctx context.Context) (store.PaymentStore, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		w.log.Info("connecting to store", zap.Int("attempt", attempt), zap.String("url", w.cfg.StoreURL))
		st, err := w.connect(w.cfg.StoreURL)
		if err == nil {
			if err = st.Ping(ctx); err == nil {
				return st, nil
			}
			st.Close()
		}
		lastErr = err
		w.log.Warn("store connection failed", zap.Int("attempt", attempt), zap.Error(err))
		if !sleepCtx(ctx, connectBackoff) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrStoreUnavailable, connectAttempts, lastErr)
}

// reconnect redials the store until it answers or ctx is cancelled. Unlike
// startup, a running worker keeps trying: the queue still holds work and
// the supervisor only restarts on exit.
func (w *Worker) reconnect(ctx context.Context, delay *backoff.Backoff) (store.PaymentStore, error) {
	for {
		d := delay.Duration()
		w.log.Warn("store connection lost, reconnecting", zap.Duration("in", d))
		if !sleepCtx(ctx, d) {
			return nil, ctx.Err()
		}
		st, err := w.connect(w.cfg.StoreURL)
		if err != nil {
			w.log.Warn("reconnect failed", zap.Error(err))
			continue
		}
		if err := st.Ping(ctx); err != nil {
			w.log.Warn("reconnect ping failed", zap.Error(err))
			st.Close()
			continue
		}
		w.log.Info("store connection restored")
		return st, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
