// Package events defines the semantic event protocol emitted by the
// workflow engine and consumed by the HTTP edge.
//
// Every request produces a totally ordered event sequence matching
//
//	route_decision · tool_start · token* · (complete | error)
//
// Token events carry a channel: "reasoning" tokens convey intermediate
// prose (generated SQL, retrieved citations), "final" tokens are the
// user-visible answer chunks. Concatenating the tokens of one channel
// yields that channel's full text; cross-channel interleaving is
// allowed and callers must tolerate it.
package events

// Event types. The set is closed.
const (
	TypeRouteDecision = "route_decision"
	TypeToolStart     = "tool_start"
	TypeToken         = "token"
	TypeComplete      = "complete"
	TypeError         = "error"
)

// Routes (classifier output, carried on route_decision).
const (
	RouteSQL     = "sql"
	RouteRAG     = "rag"
	RouteGeneral = "general"
)

// Tools (carried on tool_start).
const (
	ToolSQLAgent     = "sql_agent"
	ToolRAGAgent     = "rag_agent"
	ToolGeneralAgent = "general_agent"
)

// Token channels.
const (
	ChannelReasoning = "reasoning"
	ChannelFinal     = "final"
)

// Stats summarizes token delivery for the complete event.
type Stats struct {
	Tokens          int `json:"tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
	FinalTokens     int `json:"final_tokens"`
}

// Event is the tagged record pushed to the caller. Exactly one of the
// optional payload fields is populated, discriminated by Type.
type Event struct {
	Type    string `json:"type"`
	Route   string `json:"route,omitempty"`   // route_decision
	Tool    string `json:"tool,omitempty"`    // tool_start
	Channel string `json:"channel,omitempty"` // token
	Content string `json:"content,omitempty"` // token
	Stats   *Stats `json:"stats,omitempty"`   // complete
	Error   string `json:"error,omitempty"`   // error
}

// RouteDecision builds a route_decision event.
func RouteDecision(route string) Event {
	return Event{Type: TypeRouteDecision, Route: route}
}

// ToolStart builds a tool_start event.
func ToolStart(tool string) Event {
	return Event{Type: TypeToolStart, Tool: tool}
}

// Token builds a token event on the given channel.
func Token(channel, content string) Event {
	return Event{Type: TypeToken, Channel: channel, Content: content}
}

// Complete builds the terminal success event.
func Complete(stats Stats) Event {
	return Event{Type: TypeComplete, Stats: &stats}
}

// Error builds the terminal failure event. No complete follows it.
func Error(msg string) Event {
	return Event{Type: TypeError, Error: msg}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}
