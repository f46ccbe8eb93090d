// Package fetch defines core types shared across subsystems.
package fetch

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoActiveProxies is returned when a round starts with every proxy retired.
var ErrNoActiveProxies = errors.New("no active proxies available")

// UnexpectedStatusError reports a response code outside the {200, 503}
// contract. It aborts the whole job rather than being retried.
type UnexpectedStatusError struct {
	Proxy      string
	Item       string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected response code %d for %q from %s", e.StatusCode, e.Item, e.Proxy)
}

// Request captures everything needed to fetch one item through one proxy.
type Request struct {
	BaseURL string
	Item    string
}

// Response is the transport-level result returned by a Fetcher.
// StatusCode is always set when no transport error occurred; the body is
// only meaningful on 200.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Outcome classifies one completed attempt. Fatal conditions are reported
// as errors, not Outcomes.
type Outcome struct {
	Item        string
	Retry       bool
	Information string
}

// Record is one durably stored result line.
type Record struct {
	RunID       string    `json:"run_id"`
	Item        string    `json:"item"`
	Information string    `json:"information"`
	Proxy       string    `json:"proxy"`
	RetrievedAt time.Time `json:"retrieved_at"`
}
