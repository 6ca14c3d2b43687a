package dispatch

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/paystream/relay/task"
)

// Result is the final verdict of one processor's retry budget for a task.
type Result struct {
	Success       bool
	Processor     task.Processor
	CorrelationID string
}

// Dispatcher wraps the Client with bounded, jittered exponential-backoff
// retry against a single processor. Rejected and unreachable attempts are
// both retryable; Dispatch never returns an error.
type Dispatcher struct {
	client     *Client
	maxRetries int
	base       time.Duration
}

func NewDispatcher(client *Client, maxRetries int, backoffBase time.Duration) *Dispatcher {
	return &Dispatcher{client: client, maxRetries: maxRetries, base: backoffBase}
}

// Dispatch attempts t against the processor at baseURL until success or the
// retry budget runs out. Attempts resume from t.Attempts so a re-enqueued
// task never exceeds the cap across batches.
func (d *Dispatcher) Dispatch(ctx context.Context, baseURL string, t *task.PaymentTask, proc task.Processor) Result {
	for attempt := t.Attempts; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, d.backoff(attempt)) {
				break
			}
		}
		if d.client.Submit(ctx, baseURL, t.CorrelationID, t.Amount) == StatusSuccess {
			return Result{Success: true, Processor: proc, CorrelationID: t.CorrelationID}
		}
	}
	return Result{Success: false, Processor: proc, CorrelationID: t.CorrelationID}
}

// backoff returns base * 2^(attempt-1) * (0.5 + rand[0,1)). The jitter
// spreads concurrently failing workers apart so they don't hammer a
// recovering processor in lockstep.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1)) * (0.5 + rand.Float64())
	return time.Duration(float64(d.base) * mult)
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
