package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/dusk-indust/wavecheck/internal/llm"
)

// Compile-time interface check.
var _ Client = (*APIClient)(nil)

// MaxRequests is the largest batch the service accepts.
const MaxRequests = 10000

// ErrNoResults is returned when results are requested before a batch ended.
var ErrNoResults = errors.New("batch: results not available yet")

// APIClient talks to the Message Batches service through the SDK.
type APIClient struct {
	api *anthropic.Client
}

// NewAPIClient creates an APIClient sharing c's transport and credentials.
func NewAPIClient(c *llm.Client) *APIClient {
	return &APIClient{api: c.SDK()}
}

// Submit creates a batch.
func (c *APIClient) Submit(ctx context.Context, requests []Request) (*Status, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("batch: no requests")
	}
	if len(requests) > MaxRequests {
		return nil, fmt.Errorf("batch: %d requests exceeds the limit of %d", len(requests), MaxRequests)
	}

	params := anthropic.MessageBatchNewParams{
		Requests: make([]anthropic.MessageBatchNewParamsRequest, len(requests)),
	}
	for i, r := range requests {
		params.Requests[i] = anthropic.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params:   requestParams(r.Params),
		}
	}

	b, err := c.api.Messages.Batches.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("batch: submit: %w", llm.WrapError(err))
	}
	return statusFromSDK(b), nil
}

// Poll fetches the current status.
func (c *APIClient) Poll(ctx context.Context, batchID string) (*Status, error) {
	b, err := c.api.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch: poll %s: %w", batchID, llm.WrapError(err))
	}
	return statusFromSDK(b), nil
}

// DownloadResults streams the JSONL results of an ended batch.
func (c *APIClient) DownloadResults(ctx context.Context, batchID string) ([]Result, error) {
	st, err := c.Poll(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !st.Ended() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNoResults, batchID, st.ProcessingStatus)
	}

	stream := c.api.Messages.Batches.ResultsStreaming(ctx, batchID)
	defer stream.Close()

	var results []Result
	for stream.Next() {
		results = append(results, resultFromSDK(stream.Current()))
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("batch: results %s: %w", batchID, llm.WrapError(err))
	}
	return results, nil
}

func requestParams(p llm.MessageParams) anthropic.MessageBatchNewParamsRequestParams {
	sp := p.SDK()
	return anthropic.MessageBatchNewParamsRequestParams{
		Model:       sp.Model,
		MaxTokens:   sp.MaxTokens,
		Messages:    sp.Messages,
		System:      sp.System,
		Temperature: sp.Temperature,
	}
}

func statusFromSDK(b *anthropic.MessageBatch) *Status {
	st := &Status{
		ID:               b.ID,
		Type:             "message_batch",
		ProcessingStatus: ProcessingStatus(b.ProcessingStatus),
		RequestCounts: RequestCounts{
			Processing: int(b.RequestCounts.Processing),
			Succeeded:  int(b.RequestCounts.Succeeded),
			Errored:    int(b.RequestCounts.Errored),
			Canceled:   int(b.RequestCounts.Canceled),
			Expired:    int(b.RequestCounts.Expired),
		},
		CreatedAt:  b.CreatedAt,
		ExpiresAt:  b.ExpiresAt,
		ResultsURL: b.ResultsURL,
	}
	if !b.EndedAt.IsZero() {
		ended := b.EndedAt
		st.EndedAt = &ended
	}
	return st
}

func resultFromSDK(r anthropic.MessageBatchIndividualResponse) Result {
	out := Result{CustomID: r.CustomID, Result: Outcome{Type: ResultType(r.Result.Type)}}
	switch out.Result.Type {
	case ResultSucceeded:
		out.Result.Message = llm.FromSDK(&r.Result.Message)
	case ResultErrored:
		out.Result.Error = &ErrorBody{
			Type:    r.Result.Error.Error.Type,
			Message: r.Result.Error.Error.Message,
		}
	}
	return out
}
