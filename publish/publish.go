package publish

import "context"

// OutcomeChannel carries one event per terminal payment outcome.
const OutcomeChannel = "payments:outcomes"

// OutcomeEvent is the payload published for each payment that reaches a
// terminal state.
type OutcomeEvent struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	Processor     string  `json:"processor"`
	Success       bool    `json:"success"`
	RecordedAt    string  `json:"recordedAt"`
}

// Publisher interface for publishing outcome events.
type Publisher interface {
	Publish(ctx context.Context, channel, data string) error
	Close() error
}

// Noop discards every event. Used when no pub/sub backend is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, channel, data string) error { return nil }
func (Noop) Close() error                                            { return nil }
