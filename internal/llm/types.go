package llm

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Role is the author of a message turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageParam is one input turn.
type MessageParam struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MessageParams is the body of a Messages API request.
type MessageParams struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Messages    []MessageParam `json:"messages"`
	System      string         `json:"system,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
}

// UserPrompt builds single-turn params.
func UserPrompt(model, prompt string, maxTokens int) MessageParams {
	return MessageParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []MessageParam{{Role: RoleUser, Content: prompt}},
	}
}

// SDK converts p to SDK request params.
func (p MessageParams) SDK() anthropic.MessageNewParams {
	out := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		MaxTokens: int64(p.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(p.Messages)),
	}
	for _, m := range p.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out.Messages = append(out.Messages, anthropic.NewAssistantMessage(block))
		} else {
			out.Messages = append(out.Messages, anthropic.NewUserMessage(block))
		}
	}
	if p.System != "" {
		out.System = []anthropic.TextBlockParam{{Text: p.System}}
	}
	if p.Temperature != nil {
		out.Temperature = anthropic.Float(*p.Temperature)
	}
	return out
}

// ContentBlock is one block of a response. Only text blocks are used.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports billed tokens.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Message is a Messages API response.
type Message struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       Role           `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// FromSDK converts an SDK response.
func FromSDK(m *anthropic.Message) *Message {
	out := &Message{
		ID:         m.ID,
		Type:       "message",
		Role:       RoleAssistant,
		Model:      string(m.Model),
		StopReason: string(m.StopReason),
		Usage: Usage{
			InputTokens:  int(m.Usage.InputTokens),
			OutputTokens: int(m.Usage.OutputTokens),
		},
	}
	for _, b := range m.Content {
		out.Content = append(out.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return out
}

// Text concatenates the text blocks.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Models maps cost tiers to model ids. The DefaultTier entry, when present,
// serves unknown tiers.
type Models map[string]string

// DefaultTier is the Models key used for tiers without their own entry.
const DefaultTier = ""

// DefaultModels returns the model for each built-in tier.
func DefaultModels() Models {
	return Models{
		"cheap":     "claude-haiku-4-5-20251001",
		"mid":       "claude-sonnet-4-5-20250929",
		"expensive": "claude-opus-4-5",
	}
}

// For returns the model for tier, falling back to the DefaultTier entry and
// then to the mid tier's model.
func (m Models) For(tier string) string {
	if id, ok := m[tier]; ok && id != "" {
		return id
	}
	if id, ok := m[DefaultTier]; ok {
		return id
	}
	return m["mid"]
}
