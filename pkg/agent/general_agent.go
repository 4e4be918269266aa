package agent

import (
	"context"
	"fmt"

	"github.com/fieldworks/answerhub/pkg/llm"
)

// GeneralAgent answers anything the other backends don't: the question
// plus truncated history goes straight to the model.
type GeneralAgent struct {
	provider        llm.Provider
	temperature     float32
	maxOutputTokens int
}

// NewGeneralAgent builds the general backend.
func NewGeneralAgent(provider llm.Provider, temperature float32, maxOutputTokens int) *GeneralAgent {
	return &GeneralAgent{provider: provider, temperature: temperature, maxOutputTokens: maxOutputTokens}
}

func (g *GeneralAgent) Name() string { return NameGeneralAgent }

const generalSystemPrompt = "You are a helpful assistant for a field-service team. Answer clearly and concisely."

// Answer sends the conversation to the model unchanged.
func (g *GeneralAgent) Answer(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	messages := make([]llm.Message, 0, len(req.Messages)+2)
	messages = append(messages, llm.System(generalSystemPrompt))
	messages = append(messages, req.Messages...)
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Content != req.Question {
		messages = append(messages, llm.User(req.Question))
	}

	answer, err := g.provider.Complete(ctx, llm.Request{
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("general completion: %w", err)
	}
	return &Result{Answer: answer}, nil
}
