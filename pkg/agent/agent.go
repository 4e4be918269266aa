// Package agent implements the three execution backends behind the
// router: the SQL agent over the business database, the RAG agent over
// the documentation corpus, and the general LLM agent. All three
// satisfy the same Adapter contract so the workflow can treat them
// interchangeably after dispatch.
package agent

import (
	"context"

	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/memory"
)

// Adapter names, surfaced on tool_start events.
const (
	NameSQLAgent     = "sql_agent"
	NameRAGAgent     = "rag_agent"
	NameGeneralAgent = "general_agent"
)

// EmitFunc receives intermediate reasoning text (generated SQL,
// retrieved citations) as the adapter works. Implementations forward it
// to the event stream; returning an error aborts the adapter.
type EmitFunc func(ctx context.Context, content string) error

// Request carries everything an adapter may need for one question.
type Request struct {
	Question      string
	Messages      []llm.Message // truncated conversation history
	MemoryContext string        // formatted query-result memory, SQL only
}

// Result is an adapter's answer. Only the SQL agent populates the
// structured fields; only the RAG agent populates Sources.
type Result struct {
	Answer         string
	StructuredData []memory.Row
	SQLQuery       string
	TablesUsed     []string
	Sources        []string
}

// Adapter is the uniform backend contract.
type Adapter interface {
	Name() string
	Answer(ctx context.Context, req Request, emit EmitFunc) (*Result, error)
}

// nopEmit lets adapters run without a live event stream.
func nopEmit(context.Context, string) error { return nil }

func ensureEmit(emit EmitFunc) EmitFunc {
	if emit == nil {
		return nopEmit
	}
	return emit
}
