// Package batch submits verification requests as an asynchronous message
// batch, polls it to completion with exponential backoff and parses the
// per-request results.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/wavecheck/internal/llm"
	"github.com/google/uuid"
)

// Discount is the price factor of batch requests relative to synchronous
// ones.
const Discount = 0.5

// Request is one entry of a batch.
type Request struct {
	CustomID string            `json:"custom_id"`
	Params   llm.MessageParams `json:"params"`
}

// NewCustomID returns "<agent>-<8 hex>".
func NewCustomID(agentID string) string {
	return agentID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AgentFromCustomID strips the random suffix added by NewCustomID.
func AgentFromCustomID(customID string) string {
	i := strings.LastIndexByte(customID, '-')
	if i < 0 {
		return customID
	}
	return customID[:i]
}

// ProcessingStatus is the lifecycle of a batch.
type ProcessingStatus string

const (
	StatusInProgress ProcessingStatus = "in_progress"
	StatusCanceling  ProcessingStatus = "canceling"
	StatusEnded      ProcessingStatus = "ended"
)

// RequestCounts tallies requests by state.
type RequestCounts struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
	Canceled   int `json:"canceled"`
	Expired    int `json:"expired"`
}

// Status describes a submitted batch.
type Status struct {
	ID               string           `json:"id"`
	Type             string           `json:"type"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	RequestCounts    RequestCounts    `json:"request_counts"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
	ResultsURL       string           `json:"results_url,omitempty"`
}

// Ended reports whether results are available.
func (s *Status) Ended() bool {
	return s.ProcessingStatus == StatusEnded
}

// ResultType is the outcome of one request.
type ResultType string

const (
	ResultSucceeded ResultType = "succeeded"
	ResultErrored   ResultType = "errored"
	ResultExpired   ResultType = "expired"
	ResultCanceled  ResultType = "canceled"
)

// ErrorBody is the error carried by an errored result.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Outcome is the tagged result of one request.
type Outcome struct {
	Type    ResultType   `json:"type"`
	Message *llm.Message `json:"message,omitempty"`
	Error   *ErrorBody   `json:"error,omitempty"`
}

// Result is one line of a batch's results.
type Result struct {
	CustomID string  `json:"custom_id"`
	Result   Outcome `json:"result"`
}

// Message returns the response of a succeeded request, or an error that
// describes why the request produced none.
func (r Result) Message() (*llm.Message, error) {
	switch r.Result.Type {
	case ResultSucceeded:
		if r.Result.Message == nil {
			return nil, fmt.Errorf("batch: %s: succeeded without a message", r.CustomID)
		}
		return r.Result.Message, nil
	case ResultErrored:
		if r.Result.Error != nil {
			return nil, fmt.Errorf("batch: %s: %s: %s", r.CustomID, r.Result.Error.Type, r.Result.Error.Message)
		}
		return nil, fmt.Errorf("batch: %s: unknown error", r.CustomID)
	case ResultExpired, ResultCanceled:
		return nil, fmt.Errorf("batch: %s: request %s", r.CustomID, r.Result.Type)
	default:
		return nil, fmt.Errorf("batch: %s: unknown result type %q", r.CustomID, r.Result.Type)
	}
}

// Client is the batch service.
type Client interface {
	Submit(ctx context.Context, requests []Request) (*Status, error)
	Poll(ctx context.Context, batchID string) (*Status, error)
	DownloadResults(ctx context.Context, batchID string) ([]Result, error)
}
