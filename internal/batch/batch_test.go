package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/wavecheck/internal/llm"
)

func TestNewCustomID(t *testing.T) {
	id := NewCustomID("security-auditor")
	assert.Regexp(t, regexp.MustCompile(`^security-auditor-[0-9a-f]{8}$`), id)
	assert.Equal(t, "security-auditor", AgentFromCustomID(id))
	assert.NotEqual(t, id, NewCustomID("security-auditor"))
}

func TestResult_Message(t *testing.T) {
	ok := Result{CustomID: "a-1", Result: Outcome{Type: ResultSucceeded, Message: &llm.Message{Content: []llm.ContentBlock{{Type: "text", Text: "{}"}}}}}
	msg, err := ok.Message()
	require.NoError(t, err)
	assert.Equal(t, "{}", msg.Text())

	cases := map[string]Result{
		"invalid_request_error: bad": {CustomID: "a-2", Result: Outcome{Type: ResultErrored, Error: &ErrorBody{Type: "invalid_request_error", Message: "bad"}}},
		"request expired":            {CustomID: "a-3", Result: Outcome{Type: ResultExpired}},
		"request canceled":           {CustomID: "a-4", Result: Outcome{Type: ResultCanceled}},
		`unknown result type "odd"`:  {CustomID: "a-5", Result: Outcome{Type: "odd"}},
	}
	for want, r := range cases {
		_, err := r.Message()
		require.Error(t, err)
		assert.Contains(t, err.Error(), want)
	}
}

// wireBatch is the subset of a batch submission the tests inspect.
type wireBatch struct {
	Requests []struct {
		CustomID string `json:"custom_id"`
		Params   struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		} `json:"params"`
	} `json:"requests"`
}

func batchJSON(id string, status ProcessingStatus, counts RequestCounts) map[string]any {
	return map[string]any{
		"id":                id,
		"type":              "message_batch",
		"processing_status": status,
		"request_counts":    counts,
		"created_at":        "2026-10-18T10:00:00Z",
		"expires_at":        "2026-10-19T10:00:00Z",
	}
}

func newAPIClient(t *testing.T, srv *httptest.Server) *APIClient {
	t.Helper()
	api, err := llm.NewClient("k", llm.WithBaseURL(srv.URL), llm.WithMaxRetries(0))
	require.NoError(t, err)
	return NewAPIClient(api)
}

func TestAPIClient_SubmitPollDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/messages/batches":
			var body wireBatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Requests, 2)
			assert.Equal(t, "security-auditor-0a1b2c3d", body.Requests[0].CustomID)
			assert.Equal(t, "m", body.Requests[0].Params.Model)
			assert.Equal(t, 10, body.Requests[0].Params.MaxTokens)
			assert.Equal(t, "def f(): pass  # BATCH_MARKER", body.Requests[0].Params.Messages[0].Content[0].Text)
			_ = json.NewEncoder(w).Encode(batchJSON("msgbatch_1", StatusInProgress, RequestCounts{Processing: 2}))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/messages/batches/msgbatch_1":
			b := batchJSON("msgbatch_1", StatusEnded, RequestCounts{Succeeded: 1, Errored: 1})
			b["ended_at"] = "2026-10-18T10:30:00Z"
			b["results_url"] = "https://api.anthropic.com/v1/messages/batches/msgbatch_1/results"
			_ = json.NewEncoder(w).Encode(b)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/messages/batches/msgbatch_1/results":
			fmt.Fprintln(w, `{"custom_id":"security-auditor-0a1b2c3d","result":{"type":"succeeded","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"{\"findings\":[]}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}}}`)
			fmt.Fprintln(w, `{"custom_id":"code-reviewer-deadbeef","result":{"type":"errored","error":{"type":"error","error":{"type":"overloaded_error","message":"busy"}}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newAPIClient(t, srv)
	ctx := context.Background()

	st, err := c.Submit(ctx, []Request{
		{CustomID: "security-auditor-0a1b2c3d", Params: llm.UserPrompt("m", "def f(): pass  # BATCH_MARKER", 10)},
		{CustomID: "code-reviewer-deadbeef", Params: llm.UserPrompt("m", "p", 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, "msgbatch_1", st.ID)
	assert.False(t, st.Ended())
	assert.Equal(t, 2, st.RequestCounts.Processing)
	assert.Nil(t, st.EndedAt)

	st, err = c.Poll(ctx, "msgbatch_1")
	require.NoError(t, err)
	assert.True(t, st.Ended())
	require.NotNil(t, st.EndedAt)

	results, err := c.DownloadResults(ctx, "msgbatch_1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ResultSucceeded, results[0].Result.Type)
	msg, err := results[0].Message()
	require.NoError(t, err)
	assert.Equal(t, `{"findings":[]}`, msg.Text())
	assert.Equal(t, 10, msg.Usage.InputTokens)

	assert.Equal(t, ResultErrored, results[1].Result.Type)
	_, err = results[1].Message()
	assert.ErrorContains(t, err, "overloaded_error: busy")
}

func TestAPIClient_DownloadBeforeEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(batchJSON("b", StatusInProgress, RequestCounts{Processing: 1}))
	}))
	defer srv.Close()

	_, err := newAPIClient(t, srv).DownloadResults(context.Background(), "b")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestAPIClient_PollErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"not_found_error","message":"no such batch"}}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(t, srv).Poll(context.Background(), "nope")
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
}

func TestAPIClient_SubmitRejectsEmpty(t *testing.T) {
	api, err := llm.NewClient("k")
	require.NoError(t, err)
	_, err = NewAPIClient(api).Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestBackoff_Schedule(t *testing.T) {
	b := DefaultBackoff()
	b.Jitter = 0
	s := b.schedule()
	want := []time.Duration{60 * time.Second, 90 * time.Second, 135 * time.Second, 202500 * time.Millisecond, 5 * time.Minute, 5 * time.Minute}
	for i, w := range want {
		assert.InDelta(t, float64(w), float64(s.NextBackOff()), float64(time.Millisecond), "delay %d", i)
	}

	// Jitter stays within 10% of the capped interval.
	s = DefaultBackoff().schedule()
	for range 10 {
		s.NextBackOff()
	}
	for range 20 {
		d := s.NextBackOff()
		assert.GreaterOrEqual(t, d, 270*time.Second)
		assert.LessOrEqual(t, d, 330*time.Second)
	}
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

type scriptedClient struct {
	statuses []ProcessingStatus
	polls    int
	pollErr  error
}

func (s *scriptedClient) Submit(context.Context, []Request) (*Status, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedClient) Poll(_ context.Context, id string) (*Status, error) {
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	i := min(s.polls, len(s.statuses)-1)
	s.polls++
	return &Status{ID: id, ProcessingStatus: s.statuses[i]}, nil
}

func (s *scriptedClient) DownloadResults(context.Context, string) ([]Result, error) {
	return nil, errors.New("not implemented")
}

func TestPoller_WaitsWithBackoffUntilEnded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	client := &scriptedClient{statuses: []ProcessingStatus{StatusInProgress, StatusInProgress, StatusEnded}}
	b := DefaultBackoff()
	b.Jitter = 0
	p, err := NewPoller(client, b, WithClock(clock.now, clock.sleep))
	require.NoError(t, err)

	st, err := p.Wait(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, st.Ended())
	assert.Equal(t, 3, client.polls)
	require.Len(t, clock.sleeps, 2)
	assert.InDelta(t, float64(60*time.Second), float64(clock.sleeps[0]), float64(time.Millisecond))
	assert.InDelta(t, float64(90*time.Second), float64(clock.sleeps[1]), float64(time.Millisecond))
}

func TestPoller_TimesOut(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	client := &scriptedClient{statuses: []ProcessingStatus{StatusInProgress}}
	b := DefaultBackoff()
	b.Jitter = 0
	b.MaxWait = 10 * time.Minute
	p, err := NewPoller(client, b, WithClock(clock.now, clock.sleep))
	require.NoError(t, err)

	_, err = p.Wait(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "slow", te.BatchID)
	assert.Equal(t, StatusInProgress, te.Last)
	// 60 + 90 + 135 + 202.5 = 487.5s; the next 300s delay would pass 10m.
	assert.Len(t, clock.sleeps, 4)
	assert.LessOrEqual(t, te.Waited, b.MaxWait)
}

func TestPoller_PropagatesPollErrors(t *testing.T) {
	boom := errors.New("boom")
	p, err := NewPoller(&scriptedClient{pollErr: boom}, DefaultBackoff())
	require.NoError(t, err)
	_, err = p.Wait(context.Background(), "b")
	assert.ErrorIs(t, err, boom)
}

func TestPoller_HonoursCancellation(t *testing.T) {
	client := &scriptedClient{statuses: []ProcessingStatus{StatusInProgress}}
	b := DefaultBackoff()
	b.Base = time.Hour
	b.Max = time.Hour
	b.MaxWait = 24 * time.Hour
	p, err := NewPoller(client, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = p.Wait(ctx, "b")
	assert.ErrorIs(t, err, context.Canceled)
}
