// Package llm abstracts the chat-completion providers used by the LLM
// runtime. Providers translate a neutral request/response shape to their
// vendor SDKs; tool-loop mechanics live with the caller.
package llm

import (
	"context"
	"fmt"

	"github.com/harlan/mixcue/pkg/tools"
)

// Provider is a chat-completion backend capable of tool calling.
type Provider interface {
	Call(ctx context.Context, request Request) (*Response, error)
	Name() string
}

// Request contains the parameters for one completion call.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response is a provider-neutral completion result.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Message is one turn in the conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption per call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolSpec describes one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// SpecsFromDefinitions converts registry definitions to provider tool specs.
func SpecsFromDefinitions(defs []*tools.Definition) []ToolSpec {
	specs := make([]ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		}
	}
	return specs
}

// Credential holds the API key for one provider.
type Credential struct {
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
}

// Configured reports whether the credential can be used.
func (c Credential) Configured() bool {
	return c.Provider != "" && c.APIKey != ""
}

// NewProvider builds a provider from a credential.
func NewProvider(cred Credential) (Provider, error) {
	switch cred.Provider {
	case "anthropic":
		return NewAnthropicProvider(cred.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cred.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cred.Provider)
	}
}
