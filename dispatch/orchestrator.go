package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/paystream/relay/task"
)

// Orchestrator runs the two-wave dispatch protocol for a batch: every task
// goes to the default processor in parallel, failures move to the fallback
// processor in parallel, and each decoded task yields exactly one Outcome.
type Orchestrator struct {
	dispatcher  *Dispatcher
	defaultURL  string
	fallbackURL string
	log         *zap.Logger
}

func NewOrchestrator(d *Dispatcher, defaultURL, fallbackURL string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{dispatcher: d, defaultURL: defaultURL, fallbackURL: fallbackURL, log: log}
}

// ProcessBatch dispatches a decoded batch and returns one outcome per task.
// Fan-out is bounded by the batch size itself; there is no separate pool.
// The fallback wave starts only after every default attempt is final.
func (o *Orchestrator) ProcessBatch(ctx context.Context, payments []*task.PaymentTask) []task.Outcome {
	if len(payments) == 0 {
		return nil
	}

	defaults := o.dispatchAll(ctx, o.defaultURL, task.ProcessorDefault, payments)

	var retries []*task.PaymentTask
	retryIdx := make([]int, 0, len(payments))
	for i, r := range defaults {
		if !r.Success {
			retries = append(retries, payments[i])
			retryIdx = append(retryIdx, i)
		}
	}

	var fallbacks []Result
	if len(retries) > 0 {
		fallbacks = o.dispatchAll(ctx, o.fallbackURL, task.ProcessorFallback, retries)
	}

	outcomes := make([]task.Outcome, len(payments))
	for i, p := range payments {
		outcomes[i] = task.Outcome{
			Success:       defaults[i].Success,
			Processor:     task.ProcessorDefault,
			CorrelationID: p.CorrelationID,
			Amount:        p.Amount,
			LockToken:     p.LockToken,
		}
	}
	for j, r := range fallbacks {
		i := retryIdx[j]
		outcomes[i].Success = r.Success
		outcomes[i].Processor = task.ProcessorFallback
	}
	return outcomes
}

// dispatchAll fans one Dispatch per task out and joins on all of them. A
// panic inside one task's dispatch counts as that task's failure and never
// aborts the rest of the batch.
func (o *Orchestrator) dispatchAll(ctx context.Context, baseURL string, proc task.Processor, payments []*task.PaymentTask) []Result {
	results := make([]Result, len(payments))
	var wg sync.WaitGroup
	for i, p := range payments {
		wg.Add(1)
		go func(i int, p *task.PaymentTask) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("dispatch panic",
						zap.String("correlationId", p.CorrelationID),
						zap.String("processor", string(proc)),
						zap.Any("panic", r))
					results[i] = Result{Success: false, Processor: proc, CorrelationID: p.CorrelationID}
				}
			}()
			results[i] = o.dispatcher.Dispatch(ctx, baseURL, p, proc)
		}(i, p)
	}
	wg.Wait()
	return results
}
