package task

import (
	"fmt"
	"time"
)

// Processor identifies which external payment processor handled a payment.
type Processor string

const (
	ProcessorDefault  Processor = "default"
	ProcessorFallback Processor = "fallback"
)

// PaymentTask is one requested payment as it travels through the queue.
// Field names match the wire format the gateway produces. CorrelationID is
// the payment's identity; ProcessingID and Timestamp are informational.
// Attempts carries the number of dispatch attempts already made so a
// re-enqueued task resumes its retry budget instead of resetting it.
type PaymentTask struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	ProcessingID  string  `json:"processingId,omitempty"`
	Timestamp     float64 `json:"timestamp,omitempty"`
	Attempts      int     `json:"attempts,omitempty"`
	APIInstance   string  `json:"apiInstance,omitempty"`
	LockToken     string  `json:"lockToken,omitempty"`
}

// New builds a task for a freshly accepted payment. The lock token is the
// value the gateway stored under the payment's processing lock; the worker
// uses it for a checked release once the payment reaches a terminal state.
func New(correlationID string, amount float64, instance, lockToken string) *PaymentTask {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	return &PaymentTask{
		CorrelationID: correlationID,
		Amount:        amount,
		ProcessingID:  fmt.Sprintf("%s:%s:%f", correlationID, instance, now),
		Timestamp:     now,
		APIInstance:   instance,
		LockToken:     lockToken,
	}
}

// Outcome is the terminal result of one payment: which processor settled
// (or last rejected) it, and whether it succeeded. Exactly one Outcome is
// produced per decoded task in a batch.
type Outcome struct {
	Success       bool
	Processor     Processor
	CorrelationID string
	Amount        float64
	LockToken     string
}

// Totals aggregates settled payments for one processor.
type Totals struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

// Summary is the gateway's payments-summary response body.
type Summary struct {
	Default  Totals `json:"default"`
	Fallback Totals `json:"fallback"`
}

// Counts holds the membership-set cardinalities used for consistency
// reporting. At quiescence Submitted == Processed + Failed and Pending is 0.
type Counts struct {
	Submitted int64
	Processed int64
	Failed    int64
	Pending   int64
}
