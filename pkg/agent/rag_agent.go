package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/rag"
)

// RAGAgent answers how-to and usage questions from the documentation
// corpus: embed the question, retrieve the nearest chunks, answer from
// a grounded prompt. Produces no structured data.
type RAGAgent struct {
	provider  llm.Provider
	retriever rag.Retriever
	topK      int

	temperature     float32
	maxOutputTokens int
}

// NewRAGAgent builds the RAG backend. topK <= 0 defaults to 5.
func NewRAGAgent(provider llm.Provider, retriever rag.Retriever, topK int, temperature float32, maxOutputTokens int) *RAGAgent {
	if topK <= 0 {
		topK = 5
	}
	return &RAGAgent{
		provider:        provider,
		retriever:       retriever,
		topK:            topK,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
	}
}

func (r *RAGAgent) Name() string { return NameRAGAgent }

const ragSystemPrompt = `You answer questions about how to use the field-service system.
Answer only from the provided documentation passages. If the passages do not cover the question, say you could not find it in the documentation. Cite the source file of any passage you use.`

// Answer embeds the question, retrieves grounding passages, and asks
// the model for a cited answer.
func (r *RAGAgent) Answer(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	emit = ensureEmit(emit)

	embedding, err := r.provider.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	chunks, err := r.retriever.Retrieve(ctx, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve documentation: %w", err)
	}
	if len(chunks) == 0 {
		return &Result{Answer: "I couldn't find anything in the documentation about that."}, nil
	}

	sources := chunkSources(chunks)
	if err := emit(ctx, fmt.Sprintf("Retrieved %d passages: %s\n", len(chunks), strings.Join(sources, ", "))); err != nil {
		return nil, err
	}

	answer, err := r.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System(ragSystemPrompt),
			llm.User(groundedPrompt(req.Question, chunks)),
		},
		Temperature: r.temperature,
		MaxTokens:   r.maxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("grounded completion: %w", err)
	}

	return &Result{Answer: answer, Sources: sources}, nil
}

func groundedPrompt(question string, chunks []rag.Chunk) string {
	var b strings.Builder
	b.WriteString("Documentation passages:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, chunk.Source, chunk.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// chunkSources returns the distinct source names in retrieval order.
func chunkSources(chunks []rag.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var out []string
	for _, chunk := range chunks {
		if chunk.Source == "" {
			continue
		}
		if _, dup := seen[chunk.Source]; dup {
			continue
		}
		seen[chunk.Source] = struct{}{}
		out = append(out, chunk.Source)
	}
	return out
}
