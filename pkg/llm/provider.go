// Package llm abstracts the chat-completion providers (OpenAI and any
// OpenAI-compatible endpoint, which covers ollama) behind a single
// Provider interface. Callers build a message list and either collect
// the full completion or consume it chunk by chunk.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model. The JSON tags matter:
// messages are serialized as part of the workflow checkpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Chunk is one streamed fragment of a completion.
type Chunk struct {
	Content string
}

// Provider is the model backend. CompleteStream follows the two-channel
// convention: the chunk channel closes when the stream ends, and the
// error channel carries at most one terminal error.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
