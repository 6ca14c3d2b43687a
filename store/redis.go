package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paystream/relay/task"
)

// releaseScript deletes a processing lock only when its value still matches
// the token the gateway stored at acquisition. A lock that expired and was
// re-acquired by a later submission keeps its new owner.
var releaseScript = redis.NewScript(
	`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)

// RedisPaymentStore implements PaymentStore on a single Redis instance.
type RedisPaymentStore struct {
	db *redis.Client
}

func NewRedisPaymentStore(connString string) (*RedisPaymentStore, error) {
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, err
	}
	return &RedisPaymentStore{db: redis.NewClient(opts)}, nil
}

func (s *RedisPaymentStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx).Err()
}

func (s *RedisPaymentStore) Enqueue(ctx context.Context, correlationID, payload string) error {
	_, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, QueueKey, payload)
		p.SAdd(ctx, SubmittedKey, correlationID)
		p.SAdd(ctx, PendingKey, correlationID)
		return nil
	})
	return err
}

func (s *RedisPaymentStore) AcquireLock(ctx context.Context, correlationID, token string, ttl time.Duration) (bool, error) {
	return s.db.SetNX(ctx, LockKey(correlationID), token, ttl).Result()
}

func (s *RedisPaymentStore) ReleaseLock(ctx context.Context, correlationID string) error {
	return s.db.Unlink(ctx, LockKey(correlationID)).Err()
}

func (s *RedisPaymentStore) FetchBatch(ctx context.Context, batchSize int, pollTimeout time.Duration) ([]string, error) {
	res, err := s.db.BLPop(ctx, pollTimeout, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	batch := []string{res[1]}

	// One blocking pop, then a single pipelined round of non-blocking pops.
	// The extra drain is capped at 50 to bound per-cycle latency even when
	// the batch size is configured very large.
	extra := batchSize - 1
	if extra > 50 {
		extra = 50
	}
	if extra <= 0 {
		return batch, nil
	}

	cmds := make([]*redis.StringCmd, 0, extra)
	if _, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := 0; i < extra; i++ {
			cmds = append(cmds, p.LPop(ctx, QueueKey))
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return drained(batch, cmds)
}

// drained collects the payloads from a pipelined round of LPops. A nil
// result is skipped, never treated as the end of the queue: a pipeline is
// not atomic, so a push from another client can land between two queued
// pops and leave a payload behind an empty slot. Every pop that removed
// something from Redis must make it into the batch.
func drained(batch []string, cmds []*redis.StringCmd) ([]string, error) {
	for _, cmd := range cmds {
		payload, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, payload)
	}
	return batch, nil
}

func (s *RedisPaymentStore) RecordOutcomes(ctx context.Context, outcomes []task.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	_, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, o := range outcomes {
			p.SRem(ctx, PendingKey, o.CorrelationID)
			if o.Success {
				p.SAdd(ctx, ProcessedKey, o.CorrelationID)
				switch o.Processor {
				case task.ProcessorDefault:
					p.HIncrBy(ctx, SummaryKey, FieldSuccess, 1)
					p.HIncrByFloat(ctx, SummaryKey, FieldSuccessAmount, o.Amount)
				case task.ProcessorFallback:
					p.HIncrBy(ctx, SummaryKey, FieldFallback, 1)
					p.HIncrByFloat(ctx, SummaryKey, FieldFallbackAmount, o.Amount)
				}
			} else {
				p.SAdd(ctx, FailedKey, o.CorrelationID)
			}
		}
		for _, o := range outcomes {
			if o.LockToken != "" {
				releaseScript.Eval(ctx, p, []string{LockKey(o.CorrelationID)}, o.LockToken)
			} else {
				p.Unlink(ctx, LockKey(o.CorrelationID))
			}
		}
		return nil
	})
	return err
}

func (s *RedisPaymentStore) PendingMembers(ctx context.Context) ([]string, error) {
	return s.db.SMembers(ctx, PendingKey).Result()
}

func (s *RedisPaymentStore) HeldLocks(ctx context.Context, correlationIDs []string) (map[string]bool, error) {
	if len(correlationIDs) == 0 {
		return map[string]bool{}, nil
	}
	cmds := make([]*redis.IntCmd, len(correlationIDs))
	if _, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range correlationIDs {
			cmds[i] = p.Exists(ctx, LockKey(id))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(correlationIDs))
	for i, id := range correlationIDs {
		held[id] = cmds[i].Val() > 0
	}
	return held, nil
}

func (s *RedisPaymentStore) ClearPending(ctx context.Context, correlationIDs []string) error {
	if len(correlationIDs) == 0 {
		return nil
	}
	return s.db.SRem(ctx, PendingKey, toAny(correlationIDs)...).Err()
}

func (s *RedisPaymentStore) ActiveLocks(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.db.Scan(ctx, 0, LockPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(LockPrefix):])
	}
	return ids, iter.Err()
}

func (s *RedisPaymentStore) Accounted(ctx context.Context, correlationIDs []string) (map[string]bool, error) {
	if len(correlationIDs) == 0 {
		return map[string]bool{}, nil
	}
	type membership struct {
		pending, processed, failed *redis.BoolCmd
	}
	cmds := make([]membership, len(correlationIDs))
	if _, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range correlationIDs {
			cmds[i] = membership{
				pending:   p.SIsMember(ctx, PendingKey, id),
				processed: p.SIsMember(ctx, ProcessedKey, id),
				failed:    p.SIsMember(ctx, FailedKey, id),
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	accounted := make(map[string]bool, len(correlationIDs))
	for i, id := range correlationIDs {
		accounted[id] = cmds[i].pending.Val() || cmds[i].processed.Val() || cmds[i].failed.Val()
	}
	return accounted, nil
}

func (s *RedisPaymentStore) DropLocks(ctx context.Context, correlationIDs []string) error {
	if len(correlationIDs) == 0 {
		return nil
	}
	keys := make([]string, len(correlationIDs))
	for i, id := range correlationIDs {
		keys[i] = LockKey(id)
	}
	return s.db.Unlink(ctx, keys...).Err()
}

func (s *RedisPaymentStore) InitSummary(ctx context.Context) error {
	_, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, SummaryKey, FieldSuccess, 0)
		p.HSetNX(ctx, SummaryKey, FieldSuccessAmount, 0)
		p.HSetNX(ctx, SummaryKey, FieldFallback, 0)
		p.HSetNX(ctx, SummaryKey, FieldFallbackAmount, 0)
		return nil
	})
	return err
}

func (s *RedisPaymentStore) Summary(ctx context.Context) (*task.Summary, *task.Counts, error) {
	var (
		succ, succAmt, fb, fbAmt   *redis.StringCmd
		subm, proc, failed, pending *redis.IntCmd
	)
	if _, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		succ = p.HGet(ctx, SummaryKey, FieldSuccess)
		succAmt = p.HGet(ctx, SummaryKey, FieldSuccessAmount)
		fb = p.HGet(ctx, SummaryKey, FieldFallback)
		fbAmt = p.HGet(ctx, SummaryKey, FieldFallbackAmount)
		subm = p.SCard(ctx, SubmittedKey)
		proc = p.SCard(ctx, ProcessedKey)
		failed = p.SCard(ctx, FailedKey)
		pending = p.SCard(ctx, PendingKey)
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, err
	}
	summary := &task.Summary{
		Default:  task.Totals{TotalRequests: hashInt(succ), TotalAmount: hashFloat(succAmt)},
		Fallback: task.Totals{TotalRequests: hashInt(fb), TotalAmount: hashFloat(fbAmt)},
	}
	counts := &task.Counts{
		Submitted: subm.Val(),
		Processed: proc.Val(),
		Failed:    failed.Val(),
		Pending:   pending.Val(),
	}
	return summary, counts, nil
}

func (s *RedisPaymentStore) Purge(ctx context.Context) error {
	// Locks first, via SCAN + UNLINK so large keyspaces don't block Redis.
	var locks []string
	iter := s.db.Scan(ctx, 0, LockPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		locks = append(locks, iter.Val())
		if len(locks) >= 500 {
			if err := s.db.Unlink(ctx, locks...).Err(); err != nil {
				return err
			}
			locks = locks[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(locks) > 0 {
		if err := s.db.Unlink(ctx, locks...).Err(); err != nil {
			return err
		}
	}
	_, err := s.db.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Unlink(ctx, QueueKey, SummaryKey, SubmittedKey, PendingKey, ProcessedKey, FailedKey)
		return nil
	})
	return err
}

func (s *RedisPaymentStore) Close() error {
	return s.db.Close()
}

func hashInt(cmd *redis.StringCmd) int64 {
	n, err := strconv.ParseInt(cmd.Val(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func hashFloat(cmd *redis.StringCmd) float64 {
	f, err := strconv.ParseFloat(cmd.Val(), 64)
	if err != nil {
		return 0
	}
	return f
}

func toAny(ids []string) []interface{} {
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return members
}
