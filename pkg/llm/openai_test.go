package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/answerhub/pkg/config"
)

type fakeChatAPI struct {
	lastRequest openai.ChatCompletionRequest
	response    string
	err         error
	embedding   []float32
}

func (f *fakeChatAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: RoleAssistant, Content: f.response}},
		},
	}, nil
}

func (f *fakeChatAPI) CreateChatCompletionStream(_ context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	f.lastRequest = req
	return nil, f.err
}

func (f *fakeChatAPI) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	return openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: f.embedding}},
	}, nil
}

func TestCompleteMapsMessages(t *testing.T) {
	fake := &fakeChatAPI{response: "There are 10 active technicians."}
	client := &Client{api: fake, model: "gpt-4o-mini"}

	out, err := client.Complete(context.Background(), Request{
		Messages: []Message{
			System("You answer questions."),
			User("How many technicians are active?"),
		},
		Temperature: 0.2,
		MaxTokens:   256,
	})
	require.NoError(t, err)
	assert.Equal(t, "There are 10 active technicians.", out)

	assert.Equal(t, "gpt-4o-mini", fake.lastRequest.Model)
	require.Len(t, fake.lastRequest.Messages, 2)
	assert.Equal(t, RoleSystem, fake.lastRequest.Messages[0].Role)
	assert.Equal(t, "How many technicians are active?", fake.lastRequest.Messages[1].Content)
	assert.Equal(t, float32(0.2), fake.lastRequest.Temperature)
	assert.Equal(t, 256, fake.lastRequest.MaxTokens)
	assert.False(t, fake.lastRequest.Stream)
}

func TestCompleteRequiresMessages(t *testing.T) {
	client := &Client{api: &fakeChatAPI{}, model: "gpt-4o-mini"}
	_, err := client.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestCompletePropagatesAPIError(t *testing.T) {
	fake := &fakeChatAPI{err: errors.New("rate limited")}
	client := &Client{api: fake, model: "gpt-4o-mini"}

	_, err := client.Complete(context.Background(), Request{Messages: []Message{User("hi")}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limited")
}

func TestCompleteStreamSurfacesOpenError(t *testing.T) {
	fake := &fakeChatAPI{err: errors.New("connection refused")}
	client := &Client{api: fake, model: "gpt-4o-mini"}

	chunks, errs := client.CompleteStream(context.Background(), Request{Messages: []Message{User("hi")}})
	for range chunks {
	}
	err := <-errs
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
	assert.True(t, fake.lastRequest.Stream)
}

func TestEmbed(t *testing.T) {
	fake := &fakeChatAPI{embedding: []float32{0.1, 0.2, 0.3}}
	client := &Client{api: fake, model: "gpt-4o-mini", embeddingModel: defaultEmbeddingModel}

	vec, err := client.Embed(context.Background(), "technician safety checklist")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestNewFromConfig(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		client, err := NewFromConfig(&config.Config{
			LLMProvider:  config.ProviderOpenAI,
			OpenAIAPIKey: "sk-test",
			Model:        "gpt-4o-mini",
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", client.model)
		assert.Equal(t, defaultEmbeddingModel, client.embeddingModel)
	})

	t.Run("openai requires api key", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{
			LLMProvider: config.ProviderOpenAI,
			Model:       "gpt-4o-mini",
		})
		assert.Error(t, err)
	})

	t.Run("ollama", func(t *testing.T) {
		client, err := NewFromConfig(&config.Config{
			LLMProvider:   config.ProviderOllama,
			OllamaBaseURL: "http://localhost:11434",
			Model:         "llama3.1",
		})
		require.NoError(t, err)
		assert.Equal(t, "llama3.1", client.model)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewFromConfig(&config.Config{LLMProvider: "anthropic"})
		assert.Error(t, err)
	})
}
