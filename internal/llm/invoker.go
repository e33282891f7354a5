package llm

import (
	"context"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/vote"
)

// Compile-time interface checks.
var (
	_ agent.Invoker = (*Invoker)(nil)
	_ vote.Sampler  = (*Sampler)(nil)
)

// Invoker runs agents through the Messages API.
type Invoker struct {
	client *Client
	models Models
}

// NewInvoker creates an Invoker. A nil models map uses DefaultModels.
func NewInvoker(client *Client, models Models) *Invoker {
	if models == nil {
		models = DefaultModels()
	}
	return &Invoker{client: client, models: models}
}

// Invoke sends ic.Prompt on ic.Tier, or desc.Tier when ic.Tier is empty.
func (i *Invoker) Invoke(ctx context.Context, desc agent.Descriptor, ic agent.InvocationContext) (*agent.InvocationResult, error) {
	tier := ic.Tier
	if tier == "" {
		tier = desc.Tier
	}
	maxTokens := ic.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msg, err := i.client.CreateMessage(ctx, UserPrompt(i.models.For(tier), ic.Prompt, maxTokens))
	if err != nil {
		return nil, &agent.InvocationError{Agent: desc.ID, Err: err}
	}
	return &agent.InvocationResult{
		Output:       msg.Text(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
		StopReason:   msg.StopReason,
	}, nil
}

// Sampler draws independent vote samples at a fixed temperature.
type Sampler struct {
	client      *Client
	model       string
	temperature float64
	maxTokens   int
}

// NewSampler creates a Sampler on tier. maxTokens bounds each sample; a
// severity answer needs only a few tokens.
func NewSampler(client *Client, models Models, tier string, temperature float64, maxTokens int) *Sampler {
	if models == nil {
		models = DefaultModels()
	}
	s := &Sampler{
		client:      client,
		model:       models.For(tier),
		temperature: temperature,
		maxTokens:   maxTokens,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 100
	}
	return s
}

// Sample returns the text of one completion.
func (s *Sampler) Sample(ctx context.Context, prompt string) (string, error) {
	params := UserPrompt(s.model, prompt, s.maxTokens)
	temp := s.temperature
	params.Temperature = &temp

	msg, err := s.client.CreateMessage(ctx, params)
	if err != nil {
		return "", err
	}
	return msg.Text(), nil
}
