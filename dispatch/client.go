package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// Status is the outcome of a single processor attempt.
type Status int

const (
	// StatusSuccess is any 2xx response.
	StatusSuccess Status = iota
	// StatusRejected is a received non-2xx response.
	StatusRejected
	// StatusUnreachable covers timeouts, connection errors, and any other
	// transport failure where no response arrived.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejected:
		return "rejected"
	default:
		return "unreachable"
	}
}

type paymentRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

// Client performs exactly one request per call against a processor
// endpoint, with a hard client-side timeout. It does not interpret
// response bodies beyond the status code; retry policy lives in the
// Dispatcher.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Submit posts one payment to {baseURL}/payments.
func (c *Client) Submit(ctx context.Context, baseURL, correlationID string, amount float64) Status {
	body, err := json.Marshal(paymentRequest{CorrelationID: correlationID, Amount: amount})
	if err != nil {
		return StatusUnreachable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return StatusUnreachable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusUnreachable
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return StatusSuccess
	}
	return StatusRejected
}
