// Package agent describes verification agents, the interface used to invoke
// them, and the parsing of their structured reports.
package agent

import (
	"context"
	"fmt"
)

// Role identifies a verification agent.
type Role string

const (
	RoleBestPractices Role = "best-practices-enforcer"
	RoleSecurity      Role = "security-auditor"
	RoleHallucination Role = "hallucination-detector"
	RoleCodeReview    Role = "code-reviewer"
	RoleTestGen       Role = "test-generator"
)

// Mode selects how the scheduler runs an agent.
type Mode string

const (
	// ModeHybrid runs the cheap scan followed by targeted deep dives.
	ModeHybrid Mode = "hybrid"
	// ModeDirect invokes the agent once over all files and parses its report.
	ModeDirect Mode = "direct"
)

// Descriptor is the immutable configuration of one agent.
type Descriptor struct {
	ID   Role `yaml:"id" json:"id"`
	Wave int  `yaml:"wave" json:"wave"`
	// Tier is the cost tier used for direct invocation and the cheap scan.
	Tier string `yaml:"tier" json:"tier"`
	Mode Mode   `yaml:"mode" json:"mode"`
	// Structural enables tree-sitter structure triggers during the cheap scan.
	Structural bool `yaml:"structural,omitempty" json:"structural,omitempty"`
	// Prompt is a text/template rendered with PromptData.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
}

// Validate reports an incomplete descriptor.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("agent: descriptor has no id")
	}
	if d.Wave < 1 {
		return fmt.Errorf("agent: %s: wave must be >= 1, got %d", d.ID, d.Wave)
	}
	switch d.Mode {
	case ModeHybrid, ModeDirect:
	default:
		return fmt.Errorf("agent: %s: unknown mode %q", d.ID, d.Mode)
	}
	return nil
}

// InvocationContext is what an agent is asked to look at.
type InvocationContext struct {
	SessionID string
	Files     []string
	// Prompt is the fully rendered instruction.
	Prompt string
	// Tier overrides Descriptor.Tier when set.
	Tier      string
	MaxTokens int
}

// InvocationResult is the raw outcome of one invocation.
type InvocationResult struct {
	Output       string
	InputTokens  int
	OutputTokens int
	// StopReason is provider specific; empty when unknown.
	StopReason string
}

// Invoker performs one call into an external analysis capability.
// Implementations may block and must honour ctx.
type Invoker interface {
	Invoke(ctx context.Context, desc Descriptor, ic InvocationContext) (*InvocationResult, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, desc Descriptor, ic InvocationContext) (*InvocationResult, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, desc Descriptor, ic InvocationContext) (*InvocationResult, error) {
	return f(ctx, desc, ic)
}

// InvocationError wraps a failure of the external capability.
type InvocationError struct {
	Agent Role
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s: invocation failed: %v", e.Agent, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
