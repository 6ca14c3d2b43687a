package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed reports a queue payload that is neither a structured task
// nor a legacy two-field payload. Callers drop the single task and keep
// processing the rest of the batch.
var ErrMalformed = errors.New("malformed task payload")

// Decode parses a raw queue payload into a PaymentTask. Structured JSON is
// tried first; payloads that predate the JSON format use the legacy
// "correlationId|amount" encoding and get the remaining fields synthesized.
func Decode(payload string) (*PaymentTask, error) {
	var t PaymentTask
	if err := json.Unmarshal([]byte(payload), &t); err == nil {
		if t.CorrelationID == "" {
			return nil, fmt.Errorf("%w: missing correlationId", ErrMalformed)
		}
		return &t, nil
	}
	return decodeLegacy(payload)
}

func decodeLegacy(payload string) (*PaymentTask, error) {
	id, amountStr, found := strings.Cut(payload, "|")
	if !found || id == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, truncate(payload, 64))
	}
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad legacy amount %q", ErrMalformed, amountStr)
	}
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	return &PaymentTask{
		CorrelationID: id,
		Amount:        amount,
		ProcessingID:  fmt.Sprintf("legacy:%s:%f", id, now),
		Timestamp:     now,
	}, nil
}

// Encode serializes a task for the queue.
func Encode(t *PaymentTask) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", t.CorrelationID, err)
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
