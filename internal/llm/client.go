// Package llm drafts agent replies with a hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the side of the conversation a turn belongs to.
type Role string

const (
	// RoleUser is the WhatsApp contact.
	RoleUser Role = "user"
	// RoleAssistant is the agent.
	RoleAssistant Role = "assistant"
)

// Turn is one side's consecutive text as the model sees it.
type Turn struct {
	Role Role
	Text string
}

// Request asks for the agent's next reply.
type Request struct {
	Model       string
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

// Reply is the drafted agent message.
type Reply struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	Latency    time.Duration
}

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("llm: model returned an empty reply")

// Client drafts replies with one provider.
type Client interface {
	Reply(ctx context.Context, req *Request) (*Reply, error)
	// Name is the provider name.
	Name() string
	// Models lists the models the agent configuration may name.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a client for the provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", provider)
	}
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey), nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

const defaultMaxTokens = 1024

// settings resolves the model and token budget, falling back to provider defaults.
func settings(req *Request, defaultModel string) (string, int) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return model, maxTokens
}

// finish trims the drafted text and stamps the latency.
func finish(r *Reply, start time.Time) (*Reply, error) {
	r.Text = strings.TrimSpace(r.Text)
	r.Latency = time.Since(start)
	if r.Text == "" {
		return nil, ErrEmptyReply
	}
	return r, nil
}
