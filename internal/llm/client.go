// Package llm wraps the Anthropic SDK with the adapters that let
// verification agents and voters call the Messages API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxRetries is how often the SDK retries rate limits and server
// errors before a call fails.
const DefaultMaxRetries = 2

// ErrNoAPIKey is returned when a client is created without credentials.
var ErrNoAPIKey = errors.New("llm: ANTHROPIC_API_KEY is not set")

// Client sends Messages API requests through the SDK.
type Client struct {
	api anthropic.Client
}

// ClientOption configures a Client.
type ClientOption func(*[]option.RequestOption)

// WithTimeout bounds each request, retries included.
func WithTimeout(d time.Duration) ClientOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithRequestTimeout(d))
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) ClientOption {
	return func(opts *[]option.RequestOption) {
		if u != "" {
			*opts = append(*opts, option.WithBaseURL(u))
		}
	}
}

// WithMaxRetries sets how often transient failures are retried.
func WithMaxRetries(n int) ClientOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithMaxRetries(max(n, 0)))
	}
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(DefaultMaxRetries),
	}
	for _, opt := range opts {
		opt(&reqOpts)
	}
	return &Client{api: anthropic.NewClient(reqOpts...)}, nil
}

// SDK returns the underlying SDK client for services this package does not
// wrap, such as message batches.
func (c *Client) SDK() *anthropic.Client {
	return &c.api
}

// CreateMessage sends one synchronous Messages request.
func (c *Client) CreateMessage(ctx context.Context, params MessageParams) (*Message, error) {
	msg, err := c.api.Messages.New(ctx, params.SDK())
	if err != nil {
		return nil, WrapError(err)
	}
	return FromSDK(msg), nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	err        error
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

// Retryable reports rate limiting, overload and server-side failures.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// WrapError turns an SDK API error into an *APIError. Other errors, such as
// transport failures or cancellation, are only prefixed.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("llm: %w", err)
	}

	apiErr := &APIError{StatusCode: sdkErr.StatusCode, err: err}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(sdkErr.RawJSON()), &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = http.StatusText(sdkErr.StatusCode)
	}
	return apiErr
}
