// Package reconcile owns the consistency bookkeeping around terminal
// payment outcomes: recording them atomically and repairing state left
// behind by crashed workers.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paystream/relay/journal"
	"github.com/paystream/relay/publish"
	"github.com/paystream/relay/store"
	"github.com/paystream/relay/task"
)

type Reconciler struct {
	store   store.PaymentStore
	journal journal.Journal
	pub     publish.Publisher
	log     *zap.Logger
}

func New(st store.PaymentStore, j journal.Journal, pub publish.Publisher, log *zap.Logger) *Reconciler {
	return &Reconciler{store: st, journal: j, pub: pub, log: log}
}

// RecordOutcomes commits a batch of terminal outcomes. The store applies
// set membership, stats, and lock release in a single pipelined round trip;
// only after that commits do the best-effort journal write and event
// publish run. A journal or publish failure is logged, never propagated;
// the store is the source of truth.
func (r *Reconciler) RecordOutcomes(ctx context.Context, outcomes []task.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	if err := r.store.RecordOutcomes(ctx, outcomes); err != nil {
		return fmt.Errorf("record outcomes: %w", err)
	}
	if err := r.journal.Record(ctx, outcomes); err != nil {
		r.log.Warn("journal write failed", zap.Int("outcomes", len(outcomes)), zap.Error(err))
	}
	r.publishOutcomes(ctx, outcomes)
	return nil
}

func (r *Reconciler) publishOutcomes(ctx context.Context, outcomes []task.Outcome) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, o := range outcomes {
		data, err := json.Marshal(publish.OutcomeEvent{
			CorrelationID: o.CorrelationID,
			Amount:        o.Amount,
			Processor:     string(o.Processor),
			Success:       o.Success,
			RecordedAt:    now,
		})
		if err != nil {
			continue
		}
		if err := r.pub.Publish(ctx, publish.OutcomeChannel, string(data)); err != nil {
			r.log.Warn("outcome publish failed",
				zap.String("correlationId", o.CorrelationID), zap.Error(err))
		}
	}
}

// ReconcileOrphans repairs state left by crashed workers. A pending entry
// whose processing lock expired is an orphan: its owner died mid-flight.
// Orphans are cleared, not re-enqueued, so a payment is never charged a
// second time on the repair path. The reverse case, a live lock with no
// pending or terminal record, is a stale lock and gets dropped. Neither
// repair fabricates a processed/failed record.
func (r *Reconciler) ReconcileOrphans(ctx context.Context) error {
	pending, err := r.store.PendingMembers(ctx)
	if err != nil {
		return fmt.Errorf("read pending set: %w", err)
	}
	if len(pending) > 0 {
		held, err := r.store.HeldLocks(ctx, pending)
		if err != nil {
			return fmt.Errorf("check locks: %w", err)
		}
		var orphans []string
		for _, id := range pending {
			if !held[id] {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) > 0 {
			if err := r.store.ClearPending(ctx, orphans); err != nil {
				return fmt.Errorf("clear orphans: %w", err)
			}
			r.log.Info("cleared orphaned pending entries", zap.Int("count", len(orphans)))
		}
	}

	lockIDs, err := r.store.ActiveLocks(ctx)
	if err != nil {
		return fmt.Errorf("scan locks: %w", err)
	}
	if len(lockIDs) == 0 {
		return nil
	}
	accounted, err := r.store.Accounted(ctx, lockIDs)
	if err != nil {
		return fmt.Errorf("check lock accounting: %w", err)
	}
	var stale []string
	for _, id := range lockIDs {
		if !accounted[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := r.store.DropLocks(ctx, stale); err != nil {
			return fmt.Errorf("drop stale locks: %w", err)
		}
		r.log.Info("dropped stale locks", zap.Int("count", len(stale)))
	}
	return nil
}
