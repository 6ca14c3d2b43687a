package store

import (
	"context"
	"sync"
	"time"

	"github.com/paystream/relay/task"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryPaymentStore is an in-process PaymentStore for tests and local
// development. A single mutex stands in for Redis pipelining: every
// multi-key mutation is applied under one critical section.
type MemoryPaymentStore struct {
	mu        sync.Mutex
	queue     []string
	submitted map[string]struct{}
	pending   map[string]struct{}
	processed map[string]struct{}
	failed    map[string]struct{}
	locks     map[string]memoryLock

	successCount   int64
	successAmount  float64
	fallbackCount  int64
	fallbackAmount float64
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{
		submitted: make(map[string]struct{}),
		pending:   make(map[string]struct{}),
		processed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		locks:     make(map[string]memoryLock),
	}
}

func (s *MemoryPaymentStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryPaymentStore) Enqueue(ctx context.Context, correlationID, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, payload)
	s.submitted[correlationID] = struct{}{}
	s.pending[correlationID] = struct{}{}
	return nil
}

func (s *MemoryPaymentStore) AcquireLock(ctx context.Context, correlationID, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[correlationID]; ok && time.Now().Before(l.expiresAt) {
		return false, nil
	}
	s.locks[correlationID] = memoryLock{token: token, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryPaymentStore) ReleaseLock(ctx context.Context, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, correlationID)
	return nil
}

func (s *MemoryPaymentStore) FetchBatch(ctx context.Context, batchSize int, pollTimeout time.Duration) ([]string, error) {
	// One head task plus up to min(batchSize-1, 50) drained behind it.
	max := batchSize
	if max > 51 {
		max = 51
	}
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(pollTimeout)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			n := max
			if n > len(s.queue) {
				n = len(s.queue)
			}
			batch := make([]string, n)
			copy(batch, s.queue[:n])
			s.queue = s.queue[n:]
			s.mu.Unlock()
			return batch, nil
		}
		s.mu.Unlock()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *MemoryPaymentStore) RecordOutcomes(ctx context.Context, outcomes []task.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		delete(s.pending, o.CorrelationID)
		if o.Success {
			s.processed[o.CorrelationID] = struct{}{}
			switch o.Processor {
			case task.ProcessorDefault:
				s.successCount++
				s.successAmount += o.Amount
			case task.ProcessorFallback:
				s.fallbackCount++
				s.fallbackAmount += o.Amount
			}
		} else {
			s.failed[o.CorrelationID] = struct{}{}
		}
	}
	for _, o := range outcomes {
		l, ok := s.locks[o.CorrelationID]
		if !ok {
			continue
		}
		if o.LockToken == "" || l.token == o.LockToken {
			delete(s.locks, o.CorrelationID)
		}
	}
	return nil
}

func (s *MemoryPaymentStore) PendingMembers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.pending), nil
}

func (s *MemoryPaymentStore) HeldLocks(ctx context.Context, correlationIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := make(map[string]bool, len(correlationIDs))
	for _, id := range correlationIDs {
		l, ok := s.locks[id]
		held[id] = ok && time.Now().Before(l.expiresAt)
	}
	return held, nil
}

func (s *MemoryPaymentStore) ClearPending(ctx context.Context, correlationIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range correlationIDs {
		delete(s.pending, id)
	}
	return nil
}

func (s *MemoryPaymentStore) ActiveLocks(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, l := range s.locks {
		if time.Now().Before(l.expiresAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryPaymentStore) Accounted(ctx context.Context, correlationIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounted := make(map[string]bool, len(correlationIDs))
	for _, id := range correlationIDs {
		_, inPending := s.pending[id]
		_, inProcessed := s.processed[id]
		_, inFailed := s.failed[id]
		accounted[id] = inPending || inProcessed || inFailed
	}
	return accounted, nil
}

func (s *MemoryPaymentStore) DropLocks(ctx context.Context, correlationIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range correlationIDs {
		delete(s.locks, id)
	}
	return nil
}

func (s *MemoryPaymentStore) InitSummary(ctx context.Context) error {
	return nil
}

func (s *MemoryPaymentStore) Summary(ctx context.Context) (*task.Summary, *task.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &task.Summary{
		Default:  task.Totals{TotalRequests: s.successCount, TotalAmount: s.successAmount},
		Fallback: task.Totals{TotalRequests: s.fallbackCount, TotalAmount: s.fallbackAmount},
	}
	counts := &task.Counts{
		Submitted: int64(len(s.submitted)),
		Processed: int64(len(s.processed)),
		Failed:    int64(len(s.failed)),
		Pending:   int64(len(s.pending)),
	}
	return summary, counts, nil
}

func (s *MemoryPaymentStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.submitted = make(map[string]struct{})
	s.pending = make(map[string]struct{})
	s.processed = make(map[string]struct{})
	s.failed = make(map[string]struct{})
	s.locks = make(map[string]memoryLock)
	s.successCount, s.successAmount = 0, 0
	s.fallbackCount, s.fallbackAmount = 0, 0
	return nil
}

func (s *MemoryPaymentStore) Close() error {
	return nil
}

// SetMembers exposes membership-set contents for assertions and debugging.
// The key is one of SubmittedKey, PendingKey, ProcessedKey, or FailedKey.
func (s *MemoryPaymentStore) SetMembers(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case SubmittedKey:
		return keys(s.submitted)
	case PendingKey:
		return keys(s.pending)
	case ProcessedKey:
		return keys(s.processed)
	case FailedKey:
		return keys(s.failed)
	}
	return nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
