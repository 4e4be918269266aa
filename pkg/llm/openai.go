package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fieldworks/answerhub/pkg/config"
)

// chatAPI captures the subset of the go-openai client the adapter uses,
// so tests can substitute a scripted implementation.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client implements Provider via the OpenAI Chat Completions API.
// Ollama is reached through its OpenAI-compatible endpoint, so both
// providers share this one implementation.
type Client struct {
	api            chatAPI
	model          string
	embeddingModel string
}

const defaultEmbeddingModel = "text-embedding-3-small"

// NewFromConfig builds the provider named by cfg.LLMProvider.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaBaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// NewOpenAI builds an OpenAI-backed client. baseURL is optional and
// overrides the default API endpoint.
func NewOpenAI(apiKey, baseURL, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          model,
		embeddingModel: defaultEmbeddingModel,
	}, nil
}

// NewOllama builds a client against ollama's OpenAI-compatible API at
// <baseURL>/v1. Ollama ignores the API key but the SDK requires one.
func NewOllama(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ollama base url is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          model,
		embeddingModel: "nomic-embed-text",
	}, nil
}

// Complete runs a blocking chat completion and returns the full text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("messages are required")
	}
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream runs a streaming chat completion. The chunk channel is
// closed when the model finishes; the error channel carries at most one
// error and is closed alongside.
func (c *Client) CompleteStream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if len(req.Messages) == 0 {
			errs <- errors.New("messages are required")
			return
		}
		stream, err := c.api.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
		if err != nil {
			errs <- fmt.Errorf("open completion stream: %w", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("receive completion chunk: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			content := resp.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case chunks <- Chunk{Content: content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}
