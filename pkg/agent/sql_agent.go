package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fieldworks/answerhub/pkg/graph"
	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/memory"
)

// SQLAgentOptions tunes the SQL agent.
type SQLAgentOptions struct {
	MaxIterations   int // generation + correction attempt budget
	MaxRows         int // row cap on executed queries
	Temperature     float32
	MaxOutputTokens int
}

// SQLAgent answers questions by generating and executing SQL against
// the business database. Table selection is anchored on the join graph:
// entities named in the question (or, for follow-ups, the full
// vocabulary) plus their one-hop neighbors.
type SQLAgent struct {
	provider llm.Provider
	db       Querier
	graph    *graph.JoinGraph
	vocab    *graph.Vocabulary
	opts     SQLAgentOptions
}

// NewSQLAgent builds the SQL backend.
func NewSQLAgent(provider llm.Provider, db Querier, g *graph.JoinGraph, vocab *graph.Vocabulary, opts SQLAgentOptions) *SQLAgent {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 3
	}
	if opts.MaxRows < 1 {
		opts.MaxRows = 100
	}
	return &SQLAgent{provider: provider, db: db, graph: g, vocab: vocab, opts: opts}
}

func (s *SQLAgent) Name() string { return NameSQLAgent }

const sqlSystemPrompt = `You translate questions about a field-service business into a single PostgreSQL SELECT statement.

Rules:
- Output exactly one SELECT statement and nothing else. No markdown, no explanation.
- Use only the tables and columns listed in the schema.
- Always include a LIMIT clause of at most %d.
- When recent query results are provided, reuse their identifier values instead of guessing.`

// Answer resolves tables, generates SQL, executes it with a row cap,
// and retries through a bounded correction loop on database errors.
func (s *SQLAgent) Answer(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	emit = ensureEmit(emit)

	tables, err := s.resolveTables(req)
	if err != nil {
		return nil, err
	}
	schema := s.graph.SchemaBlock(tables)

	var (
		sqlText     string
		rows        []memory.Row
		generatedOK bool
		lastErr     error
	)
	for attempt := 1; attempt <= s.opts.MaxIterations; attempt++ {
		candidate, err := s.generateSQL(ctx, req, schema, lastErr)
		if err != nil {
			return nil, fmt.Errorf("sql generation call: %w", err)
		}
		candidate = sanitizeSQL(candidate)
		if !isSelect(candidate) {
			lastErr = fmt.Errorf("model output is not a SELECT statement: %q", truncate(candidate, 120))
			slog.Warn("SQL agent: rejected generated statement", "attempt", attempt, "error", lastErr)
			continue
		}
		generatedOK = true
		sqlText = candidate

		if err := emit(ctx, fmt.Sprintf("Generated SQL:\n%s\n", sqlText)); err != nil {
			return nil, err
		}

		rows, err = s.db.Query(ctx, sqlText, s.opts.MaxRows)
		if err != nil {
			lastErr = err
			if emitErr := emit(ctx, fmt.Sprintf("Query failed: %v\n", err)); emitErr != nil {
				return nil, emitErr
			}
			slog.Warn("SQL agent: execution failed, correcting", "attempt", attempt, "error", err)
			continue
		}

		answer, err := s.summarize(ctx, req.Question, sqlText, rows)
		if err != nil {
			return nil, fmt.Errorf("summarize query result: %w", err)
		}
		return &Result{
			Answer:         answer,
			StructuredData: rows,
			SQLQuery:       sqlText,
			TablesUsed:     tables,
		}, nil
	}

	if !generatedOK {
		return nil, &SQLGenerationError{Attempts: s.opts.MaxIterations, LastErr: lastErr}
	}
	return nil, &SQLExecutionError{Attempts: s.opts.MaxIterations, LastErr: lastErr}
}

// resolveTables picks the tables to expose to the generator: entities
// the question names plus their one-hop join neighbors. A question
// naming no entity is acceptable only as a follow-up, where the memory
// context anchors it; then the full vocabulary is exposed.
func (s *SQLAgent) resolveTables(req Request) ([]string, error) {
	entities := s.vocab.MatchesAll(req.Question)
	if len(entities) == 0 {
		if req.MemoryContext == "" {
			return nil, &DomainResolutionError{Question: req.Question}
		}
		entities = s.vocab.Entities()
	}

	seen := make(map[string]struct{})
	var tables []string
	add := func(name string) {
		if _, dup := seen[name]; dup || !s.graph.HasTable(name) {
			return
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	for _, entity := range entities {
		add(entity)
	}
	for _, entity := range entities {
		for _, neighbor := range s.graph.Neighbors(entity) {
			add(neighbor)
		}
	}
	return tables, nil
}

func (s *SQLAgent) generateSQL(ctx context.Context, req Request, schema string, prevErr error) (string, error) {
	var b strings.Builder
	b.WriteString("Schema:\n")
	b.WriteString(schema)
	if req.MemoryContext != "" {
		b.WriteString("\n")
		b.WriteString(req.MemoryContext)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(req.Question)
	if prevErr != nil {
		fmt.Fprintf(&b, "\n\nThe previous attempt failed with this error, fix the query:\n%v", prevErr)
	}

	return s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System(fmt.Sprintf(sqlSystemPrompt, s.opts.MaxRows)),
			llm.User(b.String()),
		},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxOutputTokens,
	})
}

// summarizeSampleRows caps how many rows are shown to the summarizer.
const summarizeSampleRows = 10

func (s *SQLAgent) summarize(ctx context.Context, question, sqlText string, rows []memory.Row) (string, error) {
	sample := rows
	if len(sample) > summarizeSampleRows {
		sample = sample[:summarizeSampleRows]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("encode result sample: %w", err)
	}

	prompt := fmt.Sprintf(
		"Question: %s\nQuery: %s\nRow count: %d\nRows (sample): %s\n\nAnswer the question in one or two sentences using only these results. If there are no rows, say so plainly.",
		question, sqlText, len(rows), sampleJSON)

	return s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You turn SQL query results into concise natural-language answers."),
			llm.User(prompt),
		},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxOutputTokens,
	})
}

// sanitizeSQL strips markdown fences and surrounding noise from model
// output.
func sanitizeSQL(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```sql")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(text), ";")
}

func isSelect(text string) bool {
	return strings.HasPrefix(strings.ToUpper(text), "SELECT")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
