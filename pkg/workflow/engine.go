// Package workflow hosts the orchestration state machine: classify the
// question, dispatch it to one backend, stream the answer, persist the
// conversation. Each node is a plain function over (state, run); the
// engine holds a table from the state's next_step to the node.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldworks/answerhub/pkg/agent"
	"github.com/fieldworks/answerhub/pkg/classifier"
	"github.com/fieldworks/answerhub/pkg/events"
	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/store"
)

// Router decides the route for a question. Satisfied by
// *classifier.Classifier.
type Router interface {
	Classify(ctx context.Context, in classifier.Input) (string, error)
}

// Options tunes the engine. Zero values get sensible defaults in New.
type Options struct {
	MaxConversationMessages  int
	MemoryStrategy           string // simple | tiered
	QueryResultMemorySize    int
	FollowupDetectionEnabled bool
	FollowupMaxContextTokens int
	EnableSQLAgent           bool
	EnableRAGAgent           bool
	BackendTimeout           time.Duration
}

// Engine runs the workflow for one request at a time per thread.
type Engine struct {
	store   *store.Store
	router  Router
	sql     agent.Adapter
	rag     agent.Adapter
	general agent.Adapter
	opts    Options
	nodes   map[string]nodeFunc
}

type nodeFunc func(ctx context.Context, r *run) error

// run is the per-request working set threaded through the nodes.
type run struct {
	threadID string
	state    *State
	emitter  *events.Emitter
}

// Canned replies for backends switched off by configuration.
const (
	disabledSQLMessage = "🔧 SQL Agent is not enabled. Enable it with ENABLE_SQL_AGENT=true to answer database questions."
	disabledRAGMessage = "🔧 RAG Agent is not enabled. Enable it with ENABLE_RAG_AGENT=true to answer documentation questions."
)

const defaultAnswer = "I couldn't find an answer to that question."

// New builds the engine.
func New(st *store.Store, router Router, sqlAgent, ragAgent, generalAgent agent.Adapter, opts Options) *Engine {
	if opts.MaxConversationMessages < 2 {
		opts.MaxConversationMessages = 20
	}
	if opts.FollowupMaxContextTokens <= 0 {
		opts.FollowupMaxContextTokens = 600
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 60 * time.Second
	}
	e := &Engine{
		store:   st,
		router:  router,
		sql:     sqlAgent,
		rag:     ragAgent,
		general: generalAgent,
		opts:    opts,
	}
	e.nodes = map[string]nodeFunc{
		StepClassify:       e.classify,
		StepExecuteSQL:     e.executeSQL,
		StepExecuteRAG:     e.executeRAG,
		StepExecuteGeneral: e.executeGeneral,
		StepFinalize:       e.finalize,
	}
	return e
}

// Run executes the workflow for one request, emitting the event stream
// on em and closing it when done. Adapter failures become user-visible
// text; only infrastructure failures produce a terminal error event.
// On error or cancellation no checkpoint is written.
func (e *Engine) Run(ctx context.Context, threadID, question string, em *events.Emitter) error {
	defer em.Close()
	start := time.Now()

	release := e.store.LockThread(threadID)
	defer release()

	state, err := e.loadState(ctx, threadID, question)
	if err != nil {
		return e.fail(ctx, em, threadID, err)
	}

	r := &run{threadID: threadID, state: state, emitter: em}
	for state.NextStep != StepEnd {
		if err := ctx.Err(); err != nil {
			slog.Info("Workflow cancelled", "thread_id", threadID, "step", state.NextStep)
			return err
		}
		node, ok := e.nodes[state.NextStep]
		if !ok {
			return e.fail(ctx, em, threadID, fmt.Errorf("unknown workflow step %q", state.NextStep))
		}
		if err := node(ctx, r); err != nil {
			return e.fail(ctx, em, threadID, err)
		}
	}

	slog.Info("Workflow complete", "thread_id", threadID,
		"duration", time.Since(start), "tokens", em.Stats().Tokens)
	return nil
}

// fail emits the terminal error event. Best effort: if the caller is
// gone the emit itself fails and only the log remains.
func (e *Engine) fail(ctx context.Context, em *events.Emitter, threadID string, err error) error {
	slog.Error("Workflow failed", "thread_id", threadID, "error", err)
	if emitErr := em.Emit(ctx, events.Error(err.Error())); emitErr != nil {
		slog.Warn("Could not deliver error event", "thread_id", threadID, "error", emitErr)
	}
	return err
}

// loadState restores the thread's checkpoint and message history and
// appends the current question exactly once.
func (e *Engine) loadState(ctx context.Context, threadID, question string) (*State, error) {
	raw, err := e.store.GetCheckpoint(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var state *State
	if raw == nil {
		state = newState(e.opts.QueryResultMemorySize)
	} else {
		state, err = decodeState(raw, e.opts.QueryResultMemorySize)
		if err != nil {
			return nil, err
		}
	}
	state.reset(question)

	stored, err := e.store.Messages(ctx, threadID, 0)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(stored)+1)
	for _, m := range stored {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != llm.RoleUser || msgs[len(msgs)-1].Content != question {
		msgs = append(msgs, llm.User(question))
	}
	state.Messages = e.truncate(msgs)
	return state, nil
}

// truncate applies the conversation-memory strategy: simple keeps the
// tail; tiered additionally keeps the opening exchange as an anchor.
func (e *Engine) truncate(msgs []llm.Message) []llm.Message {
	max := e.opts.MaxConversationMessages
	if len(msgs) <= max {
		return msgs
	}
	if e.opts.MemoryStrategy != "tiered" || max <= 2 {
		return msgs[len(msgs)-max:]
	}
	anchor := msgs[:2]
	tail := msgs[len(msgs)-(max-2):]
	out := make([]llm.Message, 0, max)
	out = append(out, anchor...)
	return append(out, tail...)
}

func (e *Engine) memoryContext(state *State) string {
	if !e.opts.FollowupDetectionEnabled {
		return ""
	}
	return state.QueryResultMemory.FormatContext(
		state.QueryResultMemory.Len(), e.opts.FollowupMaxContextTokens, true)
}

func (e *Engine) classify(ctx context.Context, r *run) error {
	route, err := e.router.Classify(ctx, classifier.Input{
		Question:      r.state.Question,
		Messages:      r.state.Messages,
		MemoryContext: e.memoryContext(r.state),
	})
	if err != nil {
		return fmt.Errorf("classify question: %w", err)
	}
	if err := r.emitter.Emit(ctx, events.RouteDecision(route)); err != nil {
		return err
	}
	slog.Info("Route decided", "thread_id", r.threadID, "route", route)

	switch route {
	case events.RouteSQL:
		r.state.NextStep = StepExecuteSQL
	case events.RouteRAG:
		r.state.NextStep = StepExecuteRAG
	default:
		r.state.NextStep = StepExecuteGeneral
	}
	return nil
}

func (e *Engine) executeSQL(ctx context.Context, r *run) error {
	if err := r.emitter.Emit(ctx, events.ToolStart(events.ToolSQLAgent)); err != nil {
		return err
	}
	if !e.opts.EnableSQLAgent {
		r.state.SQLResult = disabledSQLMessage
		r.state.NextStep = StepFinalize
		return nil
	}

	res, err := e.invoke(ctx, r, e.sql, agent.Request{
		Question:      r.state.Question,
		Messages:      r.state.Messages,
		MemoryContext: e.memoryContext(r.state),
	})
	if err != nil {
		r.state.SQLResult = friendlyMessage(err)
		r.state.NextStep = StepFinalize
		return ctxOnly(err)
	}

	r.state.SQLResult = res.Answer
	r.state.SQLStructuredResult = res.StructuredData
	r.state.QueryResultMemory.Add(r.state.Question, res.StructuredData, res.SQLQuery, res.TablesUsed)
	r.state.NextStep = StepFinalize
	return nil
}

func (e *Engine) executeRAG(ctx context.Context, r *run) error {
	if err := r.emitter.Emit(ctx, events.ToolStart(events.ToolRAGAgent)); err != nil {
		return err
	}
	if !e.opts.EnableRAGAgent {
		r.state.RAGResult = disabledRAGMessage
		r.state.NextStep = StepFinalize
		return nil
	}

	res, err := e.invoke(ctx, r, e.rag, agent.Request{
		Question: r.state.Question,
		Messages: r.state.Messages,
	})
	if err != nil {
		r.state.RAGResult = friendlyMessage(err)
		r.state.NextStep = StepFinalize
		return ctxOnly(err)
	}
	r.state.RAGResult = res.Answer
	r.state.NextStep = StepFinalize
	return nil
}

func (e *Engine) executeGeneral(ctx context.Context, r *run) error {
	if err := r.emitter.Emit(ctx, events.ToolStart(events.ToolGeneralAgent)); err != nil {
		return err
	}

	res, err := e.invoke(ctx, r, e.general, agent.Request{
		Question: r.state.Question,
		Messages: r.state.Messages,
	})
	if err != nil {
		r.state.GeneralResult = friendlyMessage(err)
		r.state.NextStep = StepFinalize
		return ctxOnly(err)
	}
	r.state.GeneralResult = res.Answer
	r.state.NextStep = StepFinalize
	return nil
}

// invoke runs an adapter under the backend deadline, forwarding its
// reasoning output to the event stream.
func (e *Engine) invoke(ctx context.Context, r *run, a agent.Adapter, req agent.Request) (*agent.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.BackendTimeout)
	defer cancel()

	res, err := a.Answer(callCtx, req, func(emitCtx context.Context, content string) error {
		return r.emitter.Emit(emitCtx, events.Token(events.ChannelReasoning, content))
	})
	if err != nil {
		slog.Warn("Backend failed", "thread_id", r.threadID, "tool", a.Name(), "error", err)
		return nil, err
	}
	return res, nil
}

// ctxOnly propagates cancellation of the request itself; backend
// failures (including backend deadline expiry) are errors-as-data and
// must not abort the workflow.
func ctxOnly(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// friendlyMessage converts an adapter failure into user-visible text.
func friendlyMessage(err error) string {
	var (
		genErr  *agent.SQLGenerationError
		execErr *agent.SQLExecutionError
		domErr  *agent.DomainResolutionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Sorry, I timed out querying the database. Please try again."
	case errors.As(err, &domErr):
		return "I couldn't relate your question to any business data I know about. Try naming a work order, technician, inspection, or other record."
	case errors.As(err, &genErr):
		return "I couldn't construct a database query for that question. Try rephrasing it."
	case errors.As(err, &execErr):
		return "The database rejected every query I tried for that question. Try rephrasing it."
	default:
		return fmt.Sprintf("I ran into a problem answering that: %v", err)
	}
}

// finalize selects the one populated result slot, streams it as final
// tokens, persists the turn, and emits complete.
func (e *Engine) finalize(ctx context.Context, r *run) error {
	state := r.state
	answer := defaultAnswer
	switch {
	case state.SQLResult != "":
		answer = state.SQLResult
		state.FinalStructuredData = state.SQLStructuredResult
	case state.RAGResult != "":
		answer = state.RAGResult
	case state.GeneralResult != "":
		answer = state.GeneralResult
	}
	state.FinalAnswer = answer

	for _, chunk := range chunkAnswer(answer) {
		if err := r.emitter.Emit(ctx, events.Token(events.ChannelFinal, chunk)); err != nil {
			return err
		}
	}

	if err := e.store.AppendMessages(ctx, r.threadID, []store.Message{
		{Role: store.RoleUser, Content: state.Question},
		{Role: store.RoleAssistant, Content: answer},
	}); err != nil {
		return fmt.Errorf("persist conversation turn: %w", err)
	}
	raw, err := state.encode()
	if err != nil {
		return err
	}
	if err := e.store.PutCheckpoint(ctx, r.threadID, raw); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}

	if err := r.emitter.Emit(ctx, events.Complete(r.emitter.Stats())); err != nil {
		return err
	}
	state.NextStep = StepEnd
	return nil
}

// chunkAnswer splits the answer after whitespace so that concatenating
// the chunks reproduces it exactly.
func chunkAnswer(s string) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\n' {
			chunks = append(chunks, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
